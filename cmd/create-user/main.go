package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/VasantLong/cgms2025/internal/config"
	"github.com/VasantLong/cgms2025/internal/database"
	"github.com/VasantLong/cgms2025/internal/logger"
	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/repository"
	"github.com/VasantLong/cgms2025/internal/service"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "cgms-create-user")

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// User creation never touches the principal cache.
	authService := service.NewAuthService(cfg, repository.NewUserRepository(pool), nil, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create System User ===")

	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		return
	}

	fmt.Print("Enter Role [admin/secretary/teacher/viewer] (default admin): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.Role(strings.TrimSpace(roleStr))
	if role == "" {
		role = model.RoleAdmin
	}
	if !role.Valid() {
		fmt.Printf("Error: unknown role %q\n", role)
		return
	}

	u, err := authService.CreateUser(ctx, username, string(bytePassword), role)
	if err != nil {
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			fmt.Printf("Error: %s\n", svcErr.Message)
			for field, msg := range svcErr.Fields {
				fmt.Printf("  %s: %s\n", field, msg)
			}
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! User '%s' (%s) created with ID: %d\n", u.Username, u.Role, u.SN)
}
