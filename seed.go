package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
)

type demoUser struct {
	username, email, password string
	pattern                   []string
}

var demoUsers = []demoUser{
	{"user_with_pattern", "pattern@example.com", "password123", []string{"phrase-0", "image-1", "icon-2"}},
	{"user_no_pattern", "nopattern@example.com", "password123", nil},
	{"admin", "admin@example.com", "admin123", []string{"phrase-3", "image-4", "icon-5"}},
}

// seed creates the demo users. Users that already exist are left alone.
func seed(ctx context.Context, svc *auth.Service) error {
	for _, d := range demoUsers {
		res, err := svc.Register(ctx, auth.RegisterInput{Username: d.username, Email: d.email, Password: d.password})
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("skipped %s (exists)\n", d.username)
			continue
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", d.username, err)
		}

		if d.pattern != nil {
			_, err := svc.SetupPattern(ctx, auth.PatternInput{UserID: res.UserID, Token: res.Token, Pattern: d.pattern})
			if err != nil {
				return fmt.Errorf("set pattern for %s: %w", d.username, err)
			}
		}
		slog.Info("seeded demo user", "source", "seed", "user_id", res.UserID, "username", d.username)
		fmt.Printf("created %s\n", d.username)
	}
	return nil
}
