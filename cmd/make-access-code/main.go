package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/pixellab-dev/invigilo/internal/config"
	"github.com/pixellab-dev/invigilo/internal/database"
	"github.com/pixellab-dev/invigilo/internal/logger"
	"github.com/pixellab-dev/invigilo/internal/repository"
	"github.com/pixellab-dev/invigilo/internal/service"
)

// Sets (or clears) an exam's access code from the terminal without the code
// ever appearing in shell history or builder API logs.
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	if len(os.Args) < 2 {
		fmt.Println("Usage: make-access-code <exam_id>")
		return
	}

	examID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Println("Error: exam_id must be a UUID")
		return
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	authService := service.NewAuthService(cfg)

	exam, err := examRepo.GetByID(ctx, examID)
	if err != nil {
		fmt.Printf("Error: exam not found: %v\n", err)
		return
	}

	fmt.Printf("=== Set Access Code for %q ===\n", exam.Title)
	fmt.Print("Enter Access Code (empty clears it): ")
	byteCode, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading access code")
		return
	}
	code := string(byteCode)
	fmt.Println()

	if code == "" {
		exam.AccessCodeHash = ""
	} else {
		if len(code) < 4 {
			fmt.Println("Error: Access code must be at least 4 characters")
			return
		}
		hash, err := authService.HashAccessCode(code)
		if err != nil {
			fmt.Printf("Error: hashing failed: %v\n", err)
			return
		}
		exam.AccessCodeHash = hash
	}

	if err := examRepo.Update(ctx, exam); err != nil {
		fmt.Printf("Error: update failed: %v\n", err)
		return
	}

	if exam.AccessCodeHash == "" {
		fmt.Println("Access code cleared.")
	} else {
		fmt.Println("Access code set.")
	}
	fmt.Println("Republish the exam to refresh the cached hash.")
}
