// Command tokengen prints a signed bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/rl1809/zlagoda/internal/auth"
	"github.com/rl1809/zlagoda/internal/core/access"
)

func main() {
	_ = godotenv.Load()

	employee := flag.String("employee", "E001", "employee id")
	role := flag.String("role", string(access.Cashier), "manager or cashier")
	email := flag.String("email", "", "optional email claim")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret, defaults to $JWT_SECRET")
	ttl := flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	flag.Parse()

	if *secret == "" {
		log.Fatal("a secret is required: pass -secret or set JWT_SECRET")
	}
	r, err := access.ParseRole(*role)
	if err != nil {
		log.Fatal(err)
	}

	token, err := auth.NewSigner(*secret, *ttl).Sign(*employee, r, *email)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}
