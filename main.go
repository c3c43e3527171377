package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bones-api/config"
	"bones-api/handlers"
	"bones-api/models"
	"bones-api/services"
	"bones-api/utils"
	"bones-api/workers"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// creditBonesTriggerSQL is the balance contract: inserting a verified
// completion credits the user, and the application never touches users.bones
// on the verification path. Insert-only crediting means a row can never be
// applied twice.
const creditBonesTriggerSQL = `
CREATE OR REPLACE FUNCTION credit_bones_on_completion() RETURNS trigger AS $$
BEGIN
	IF NEW.verification_status = 'verified' AND NEW.bones_earned > 0 THEN
		UPDATE users
		SET bones = bones + NEW.bones_earned, updated_at = NOW()
		WHERE id = NEW.user_id;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS task_completion_credit ON task_completions;
CREATE TRIGGER task_completion_credit
	AFTER INSERT ON task_completions
	FOR EACH ROW EXECUTE FUNCTION credit_bones_on_completion();
`

// completionDayIndexSQL enforces the at-most-one-row-per-(user, task, day)
// ledger rule at the storage level. Concurrent verify calls can race past the
// application's own checks at READ COMMITTED; the index makes the loser fail
// its insert instead of producing a second row (and a second credit).
const completionDayIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_task_completions_user_task_day
	ON task_completions (user_id, task_id, (((completed_at AT TIME ZONE 'UTC')::date)));
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		// Duplicate-key errors must surface as gorm.ErrDuplicatedKey so the
		// completion ledger can map them to its conflict result.
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Task{},
		&models.TaskCompletion{},
		&models.ReferralReward{},
		&models.Invite{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}
	if err := db.Exec(creditBonesTriggerSQL).Error; err != nil {
		log.Fatal("failed to install bones credit trigger: ", err)
	}
	if err := db.Exec(completionDayIndexSQL).Error; err != nil {
		log.Fatal("failed to install completion day index: ", err)
	}

	if cfg.CloudflareAccountID != "" {
		if err := utils.InitR2(cfg); err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		log.Println("✅ R2 storage initialized")
	} else {
		log.Println("⚠️  R2 not configured — task image uploads disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit:   20 * 1024 * 1024, // invite CSVs and task images
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	allowedOrigins := make([]string, 0)
	for _, origin := range strings.Split(cfg.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins = append(allowedOrigins, origin)
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Admin-Wallet",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	twitterClient := services.NewTwitterClient(db, cfg)
	verificationService := services.NewVerificationService(twitterClient)
	taskService := services.NewTaskService(db)
	completionService := services.NewCompletionService(db, verificationService)
	authService := services.NewAuthService(db, cfg, twitterClient)
	userService := services.NewUserService(db)
	adminService := services.NewAdminService(db, cfg)

	handlers.SetupTaskRoutes(app, taskService, completionService)
	handlers.SetupAuthRoutes(app, authService)
	handlers.SetupUserRoutes(app, userService)
	handlers.SetupAdminRoutes(app, adminService, cfg)

	rankScheduler, err := workers.StartRankWorker(db)
	if err != nil {
		log.Fatal("failed to start rank worker: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Println("✅ Rank worker running (every 10m)")
	log.Printf("✅ Admin allowlist holds %d wallet(s)", len(cfg.AdminWallets))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := rankScheduler.Shutdown(); err != nil {
		log.Printf("Rank worker shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
