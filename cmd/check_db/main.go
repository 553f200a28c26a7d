package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"collab-backend/internal/model"
)

// 운영용 DB 점검 툴. 테이블별 row 수와 활성 세션 현황을 출력한다.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_NAME", "collab"),
		getEnv("DB_SSLMODE", "disable"),
		getEnv("DB_TIMEZONE", "Asia/Seoul"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	counts := []struct {
		label string
		model any
	}{
		{"users", &model.User{}},
		{"projects", &model.Project{}},
		{"project_shares", &model.ProjectShare{}},
		{"project_comments", &model.ProjectComment{}},
		{"project_activities", &model.ProjectActivity{}},
		{"collaboration_sessions", &model.CollaborationSession{}},
		{"notifications", &model.Notification{}},
	}

	fmt.Println("📊 Table counts:")
	for _, c := range counts {
		var n int64
		if err := db.Model(c.model).Count(&n).Error; err != nil {
			fmt.Printf("  - %-24s error: %v\n", c.label, err)
			continue
		}
		fmt.Printf("  - %-24s %d\n", c.label, n)
	}
	fmt.Println()

	var activeSessions int64
	if err := db.Model(&model.CollaborationSession{}).
		Where("is_active = ?", true).
		Count(&activeSessions).Error; err != nil {
		log.Fatal("Failed to count active sessions:", err)
	}
	fmt.Printf("🔌 Active collaboration sessions: %d\n", activeSessions)

	type roomCount struct {
		ProjectID int64
		Sessions  int64
	}
	var rooms []roomCount
	err = db.Model(&model.CollaborationSession{}).
		Select("project_id, COUNT(*) as sessions").
		Where("is_active = ?", true).
		Group("project_id").
		Order("sessions DESC").
		Limit(10).
		Scan(&rooms).Error
	if err != nil {
		log.Fatal("Failed to list active rooms:", err)
	}

	if len(rooms) > 0 {
		fmt.Println()
		fmt.Println("📋 Busiest rooms:")
		for _, r := range rooms {
			fmt.Printf("  - project %-8d %d session(s)\n", r.ProjectID, r.Sessions)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
