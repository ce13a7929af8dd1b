package main

import (
	"context"
	"log"
	"os"

	"bitbucket.org/mmdatafocus/portal_backend/config"
	"bitbucket.org/mmdatafocus/portal_backend/models"
)

// Seeds the bootstrap admin account. Idempotent: exits cleanly when the
// username already exists.
func main() {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	name := os.Getenv("SEED_ADMIN_NAME")
	if username == "" || password == "" {
		log.Fatal("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD are required")
	}
	if name == "" {
		name = "Administrator"
	}

	config.ConnectDatabaseWithRetry()
	if err := models.MigrateTable(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	if _, err := models.GetUserByUsername(ctx, username); err == nil {
		log.Printf("admin %q already exists; nothing to do", username)
		return
	}

	user, err := models.CreateUser(ctx, &models.NewUser{
		Username: username,
		Name:     name,
		Password: password,
		Role:     string(models.UserRoleAdmin),
	})
	if err != nil {
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("admin created (id=%d username=%s)", user.ID, user.Username)
}
