package main

import (
	"flag"
	"log"
	"time"

	"collab-backend/internal/database"
	"collab-backend/internal/service"
)

// 운영용 세션 정리 툴. 서버가 비정상 종료되면 collaboration_sessions에
// is_active=true로 남는 row가 생긴다. last_seen이 오래된 세션을
// 비활성화한다 (삭제하지 않음).
func main() {
	olderThan := flag.Duration("older-than", time.Hour, "deactivate sessions idle longer than this")
	flag.Parse()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	sessions := service.NewSessionService(db)
	count, err := sessions.DeactivateStale(*olderThan)
	if err != nil {
		log.Fatalf("❌ Sweep failed: %v", err)
	}

	log.Printf("✅ Deactivated %d stale session(s) (idle > %s)", count, *olderThan)
}
