package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// genhash prints the bcrypt hash of a password, for seeding the users
// table by hand.
func main() {
	password := flag.String("password", "", "Password to hash")
	cost := flag.Int("cost", 12, "bcrypt cost factor")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("BEDROCKD_PASSWORD")
	}
	if *password == "" {
		log.Fatal("Password is required (use -password or set BEDROCKD_PASSWORD)")
	}

	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		log.Fatalf("Cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(hash))
}
