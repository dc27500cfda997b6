package main

import (
	"github.com/cppla/blogsite/config"
	"github.com/cppla/blogsite/models"
	"github.com/cppla/blogsite/routes"
	"github.com/cppla/blogsite/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)
	if err := config.SeedCategories(db, cfg.Categories); err != nil {
		utils.Sugar.Fatalf("seed categories failed: %v", err)
	}

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
