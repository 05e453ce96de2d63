package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"table-booking-backend/internal/auth"
	"table-booking-backend/internal/db"
	"table-booking-backend/internal/model"
	"table-booking-backend/internal/store"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			gormDB, err := db.Open(&cfg.Database)
			if err != nil {
				return err
			}
			return db.Migrate(gormDB, &cfg.Database, log)
		},
	}
}

// catalogFile is the layout of a seed file, see config/catalog.example.yaml.
type catalogFile struct {
	Rooms []model.Room `yaml:"rooms"`
}

func loadCatalog(path string) ([]model.Room, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Rooms) == 0 {
		return nil, fmt.Errorf("%s: no rooms defined", path)
	}
	return f.Rooms, nil
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load rooms and tables from a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := loadCatalog(file)
			if err != nil {
				return err
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database, log)
			if err != nil {
				return err
			}
			if err := store.NewGormStore(gormDB).SeedCatalog(cmd.Context(), rooms, time.Now()); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}
			log.WithField("rooms", len(rooms)).Info("catalog seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "./config/catalog.yaml", "catalog YAML file")
	return cmd
}

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	var username, password, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a staff account or reset its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				password = os.Getenv("BOOKING_USER_PASSWORD")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database, log)
			if err != nil {
				return err
			}
			u := &model.User{Username: username, PasswordHash: hash, Role: role}
			if err := store.NewGormStore(gormDB).UpsertUser(cmd.Context(), u); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"username": username, "role": role}).Info("user saved")
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "login name")
	add.Flags().StringVar(&password, "password", "", "password, defaults to $BOOKING_USER_PASSWORD")
	add.Flags().StringVar(&role, "role", "staff", "role claim put into issued tokens")

	cmd.AddCommand(add)
	return cmd
}
