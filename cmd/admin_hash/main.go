// Command admin_hash prints the bcrypt hash to pass as --admin-password-hash.
//
//	go run ./cmd/admin_hash <password>
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] == "" {
		fmt.Println("usage: go run ./cmd/admin_hash <password>")
		os.Exit(2)
	}
	hpw, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	fmt.Println(string(hpw))
}
