package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"market-chat/auth"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type config struct {
	JWTSecret string        `env:"JWT_SECRET,required=true"`
	TTL       time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
}

// Mints a development token, the same kind the identity provider hands to browsers.
//
//	go run ./cmd/token -user seller-42 -name "Sam" -ttl 2h
func main() {
	user := flag.String("user", "", "User id put in the user_id claim")
	name := flag.String("name", "", "Display name put in the name claim")
	ttl := flag.Duration("ttl", 0, "Token lifetime, AUTH_TOKEN_DURATION when zero")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	_ = godotenv.Load()
	var cfg config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if *ttl == 0 {
		*ttl = cfg.TTL
	}
	token, err := auth.NewTokenManager(cfg.JWTSecret).GenerateToken(*user, *name, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
