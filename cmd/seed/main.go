// Command main seeds demo users and a follow mesh.
package main

import (
	"context"
	"flag"
	"log"

	"dropp/internal/config"
	"dropp/internal/seed"
	"dropp/internal/server"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	followProb := flag.Float64("follow", 0.2, "Probability that a user requests to follow another")
	acceptProb := flag.Float64("accept", 0.7, "Probability that a request is accepted")
	seedValue := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	log.Println("Dropp Seeder")
	log.Printf("Target: %d users, follow=%.2f, accept=%.2f\n", *numUsers, *followProb, *acceptProb)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production datastore")
	}

	ctx := context.Background()
	deps, err := server.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = deps.Close() }()

	svc := server.NewServices(cfg, deps)
	seeder := seed.NewSeeder(svc.Accounts, svc.Follows, seed.Options{
		NumUsers:          *numUsers,
		FollowProbability: *followProb,
		AcceptProbability: *acceptProb,
		Seed:              *seedValue,
	})

	users, stats, err := seeder.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed after %d users: %v", len(users), err)
	}

	log.Printf("Done: %d users, %d requests (%d accepted, %d declined, %d pending, %d skipped)",
		stats.Users, stats.Requests, stats.Accepted, stats.Declined, stats.Pending, stats.Skipped)
	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
