package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// create-admin seeds or resets the daemon's admin account without going
// through the HTTP setup flow. Useful for recovery when the password is lost.
func main() {
	username := flag.String("username", "admin", "Username to create or reset")
	password := flag.String("password", "", "Password for the account")
	dbPath := flag.String("db", "./data/bedrockd.db", "Path to SQLite database")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("BEDROCKD_ADMIN_PASSWORD")
	}
	if *password == "" {
		log.Fatal("Password is required (use -password or set BEDROCKD_ADMIN_PASSWORD)")
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
	if err != nil {
		log.Fatal(err)
	}

	var existingID int64
	err = db.QueryRow("SELECT id FROM users WHERE username = ?", *username).Scan(&existingID)
	if err == nil {
		_, err = db.Exec(`
			UPDATE users SET password_hash = ?, is_admin = 1, is_active = 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(hash), existingID)
		if err != nil {
			log.Fatal(err)
		}
		// Force all sessions to re-authenticate with the new password
		if _, err := db.Exec("UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", existingID); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Password reset for %s.\n", *username)
		return
	}

	_, err = db.Exec(`
		INSERT INTO users (username, password_hash, is_admin, is_active)
		VALUES (?, ?, 1, 1)
	`, *username, string(hash))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Username: %s\n", *username)
	fmt.Printf("\nIMPORTANT: Change this password after first login!\n")
}
