package main

import (
	"log"

	"collab-backend/internal/config"
	"collab-backend/internal/database"
	"collab-backend/internal/presence"
	"collab-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// 스키마 마이그레이션
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Database migration failed: %v", err)
	}

	// Redis presence (선택 구성 - 실패해도 서버는 뜬다)
	var pres *presence.Manager
	if cfg.Redis.Enabled {
		pres, err = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v (presence persistence disabled)", err)
			pres = nil
		} else {
			log.Printf("✅ Redis connected (%s)", cfg.Redis.Addr)
			defer pres.Close()
		}
	} else {
		log.Println("ℹ️ Redis disabled (presence persistence disabled)")
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, pres)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
