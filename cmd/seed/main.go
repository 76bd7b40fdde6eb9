package main

import (
	"context"
	"flag"
	"log"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/store"
)

// Seed creates or updates a lecturer account so the scanner API has a login.
func main() {
	username := flag.String("username", "", "lecturer login name")
	name := flag.String("name", "", "lecturer display name")
	password := flag.String("password", "", "plaintext password to hash")
	flag.Parse()

	if *username == "" || *name == "" || *password == "" {
		log.Fatal("usage: seed -username <u> -name <n> -password <p>")
	}

	cfg := config.Load()
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("password hash failed: %v", err)
	}

	repo := attendance.NewRepository(db.Client)
	if err := repo.UpsertLecturer(context.Background(), attendance.Lecturer{
		Username:     *username,
		Name:         *name,
		PasswordHash: hash,
	}); err != nil {
		log.Fatalf("lecturer upsert failed: %v", err)
	}

	log.Printf("lecturer %q ready", *username)
}
