// workers/rank_worker.go
package workers

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartRankWorker keeps the denormalized users.rank column fresh: every ten
// minutes, Twitter-linked users are ranked by bones desc with earliest join
// breaking ties. Read paths (leaderboard, stats) only ever consume the
// column, never compute it.
func StartRankWorker(db *gorm.DB) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			RecomputeRanks(db)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}

// RecomputeRanks runs the one-statement rank rebuild.
func RecomputeRanks(db *gorm.DB) {
	err := db.Exec(`
		UPDATE users SET "rank" = ranked.rnk
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY bones DESC, created_at ASC) AS rnk
			FROM users
			WHERE twitter_username IS NOT NULL
		) AS ranked
		WHERE users.id = ranked.id
	`).Error
	if err != nil {
		log.Printf("❌ [RANKS] Failed to recompute ranks: %v", err)
		return
	}
	log.Println("✅ [RANKS] Leaderboard ranks recomputed")
}
