package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rafflemaster/rafflemaster/internal/pkg/cache"
	"github.com/rafflemaster/rafflemaster/internal/pkg/database"
	"github.com/rafflemaster/rafflemaster/internal/pkg/env"
	"github.com/rafflemaster/rafflemaster/internal/pkg/router"
	"github.com/rafflemaster/rafflemaster/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10 MiB, raffle images only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	if basePath := findDocsBasePath(); basePath != "" {
		openAPICfg := swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}
		app.Use(swagger.New(openAPICfg))
	}

	// ROUTER
	router.InstallRouter(app)

	// background reservation sweep
	sweeper.GetManager(database.GetDB()).Start()

	return app
}

// findDocsBasePath locates the project root relative to the binary's working
// directory so the OpenAPI file resolves from both cmd/ and the repo root.
func findDocsBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/rafflemaster to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
