package supervisor

import "testing"

func TestSanitizeLine(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "NO LOG FILE! - setting up server logging...", "NO LOG FILE! - setting up server logging..."},
		{"trailing crlf", "Server started.\r\n", "Server started."},
		{"color codes", "\x1b[32mINFO\x1b[0m ready", "INFO ready"},
		{"erase line", "progress\x1b[K done", "progress done"},
		{"cursor home", "\x1b[1;1H[Server] tick", "[Server] tick"},
		{"missing final byte", "cut off\x1b[12;", "cut off"},
		{"invalid utf8", "bad \xff byte", "bad � byte"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeLine(tc.in); got != tc.want {
				t.Fatalf("SanitizeLine(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
