package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/algoprep-backend/internal/config"
	"github.com/stemsi/algoprep-backend/internal/service"
)

// issue-token mints a bearer token for local testing. Production tokens are
// issued by the login service with the same JWT_SECRET.
func main() {
	var (
		userID int
		ttl    time.Duration
	)
	flag.IntVar(&userID, "user", 0, "User ID to embed in the token")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	authService := service.NewAuthService(cfg)

	// ─── CLI Input ─────────────────────────────────────────────────────
	if userID == 0 {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter User ID: ")
		raw, _ := reader.ReadString('\n')
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			fmt.Println("Error: User ID must be a number")
			os.Exit(1)
		}
		userID = id
	}
	if userID <= 0 {
		fmt.Println("Error: User ID must be positive")
		os.Exit(1)
	}

	token, err := authService.IssueToken(userID, ttl)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
