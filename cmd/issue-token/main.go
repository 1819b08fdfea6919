package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/service"
	"github.com/noah-isme/enrollment-api/pkg/config"
)

// issue-token mints an access token for the write endpoints using the same
// JWT settings the server loads.
func main() {
	var (
		userID string
		role   string
	)
	flag.StringVar(&userID, "user", "", "User ID recorded in the token subject")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "Role claim (ADMIN or STAFF)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	r := models.UserRole(strings.ToUpper(strings.TrimSpace(role)))
	if r != models.RoleAdmin && r != models.RoleStaff {
		log.Fatalf("unknown role %q", role)
	}

	token, expiresAt, err := service.NewTokenService(cfg.JWT).Issue(userID, r)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
