// services/admin_service.go
package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bones-api/config"
	"bones-api/models"
	"bones-api/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AdminService struct {
	DB     *gorm.DB
	Config *config.Config
}

func NewAdminService(db *gorm.DB, cfg *config.Config) *AdminService {
	return &AdminService{DB: db, Config: cfg}
}

// Check handles GET /api/admin/check?wallet= — the frontend's "show the
// admin tab?" probe. Not a security boundary; the admin routes have their
// own middleware.
func (s *AdminService) Check(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Wallet address required"})
	}
	return c.JSON(fiber.Map{"isAdmin": s.Config.IsAdminWallet(wallet)})
}

// --- task CRUD ---

// ListTasks handles GET /api/admin/tasks — all tasks with completion counts.
func (s *AdminService) ListTasks(c *fiber.Ctx) error {
	var tasks []models.Task
	if err := s.DB.Order("created_at ASC").Find(&tasks).Error; err != nil {
		log.Printf("DB Error fetching admin tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}

	type countRow struct {
		TaskID uint
		Count  int64
	}
	var counts []countRow
	if err := s.DB.Model(&models.TaskCompletion{}).
		Select("task_id, COUNT(*) AS count").
		Group("task_id").
		Scan(&counts).Error; err != nil {
		log.Printf("DB Error counting completions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tasks"})
	}
	byTask := make(map[uint]int64, len(counts))
	for _, row := range counts {
		byTask[row.TaskID] = row.Count
	}

	type taskRow struct {
		models.Task
		CompletionCount int64 `json:"completion_count"`
	}
	rows := make([]taskRow, len(tasks))
	for i, task := range tasks {
		rows[i] = taskRow{Task: task, CompletionCount: byTask[task.ID]}
	}

	return c.JSON(fiber.Map{"tasks": rows})
}

type taskRequest struct {
	Title            string                `json:"title"`
	ShortDescription string                `json:"shortDescription"`
	ImageURL         string                `json:"imageUrl"`
	TaskType         models.TaskType       `json:"taskType"`
	TaskData         models.TaskData       `json:"taskData"`
	BonesReward      int                   `json:"bonesReward"`
	RecurrenceType   models.RecurrenceType `json:"recurrenceType"`
	IsRecurrent      bool                  `json:"isRecurrent"`
	ScheduledDate    string                `json:"scheduledDate"`
}

// CreateTask handles POST /api/admin/tasks
func (s *AdminService) CreateTask(c *fiber.Ctx) error {
	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" || req.TaskType == "" || req.BonesReward <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing required fields"})
	}
	if !models.ValidTaskType(req.TaskType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown task type"})
	}
	if req.RecurrenceType == "" {
		req.RecurrenceType = models.RecurrenceSingleDay
	}
	if !models.ValidRecurrenceType(req.RecurrenceType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown recurrence type"})
	}

	scheduled, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scheduled date"})
	}
	if req.RecurrenceType == models.RecurrenceSingleDay && scheduled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "single_day tasks require a scheduled date"})
	}

	task := models.Task{
		Title:            req.Title,
		ShortDescription: req.ShortDescription,
		ImageURL:         req.ImageURL,
		TaskType:         req.TaskType,
		TaskData:         req.TaskData,
		BonesReward:      req.BonesReward,
		RecurrenceType:   req.RecurrenceType,
		IsRecurrent:      req.IsRecurrent,
		ScheduledDate:    scheduled,
		IsActive:         true,
		CreatedBy:        adminWallet(c),
	}
	if err := s.DB.Create(&task).Error; err != nil {
		log.Printf("DB Error creating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create task"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "task": task})
}

// UpdateTask handles PUT /api/admin/tasks/:id
func (s *AdminService) UpdateTask(c *fiber.Ctx) error {
	task, status, err := s.findTask(c)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	var req taskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TaskType != "" && !models.ValidTaskType(req.TaskType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown task type"})
	}
	if req.RecurrenceType != "" && !models.ValidRecurrenceType(req.RecurrenceType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown recurrence type"})
	}

	scheduled, err := parseScheduledDate(req.ScheduledDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid scheduled date"})
	}

	if req.Title != "" {
		task.Title = req.Title
	}
	if req.ShortDescription != "" {
		task.ShortDescription = req.ShortDescription
	}
	task.ImageURL = req.ImageURL
	if req.TaskType != "" {
		task.TaskType = req.TaskType
	}
	task.TaskData = req.TaskData
	if req.BonesReward > 0 {
		task.BonesReward = req.BonesReward
	}
	if req.RecurrenceType != "" {
		task.RecurrenceType = req.RecurrenceType
	}
	task.IsRecurrent = req.IsRecurrent
	if scheduled != nil {
		task.ScheduledDate = scheduled
	}

	if err := s.DB.Save(task).Error; err != nil {
		log.Printf("DB Error updating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update task"})
	}
	return c.JSON(fiber.Map{"success": true, "task": task})
}

// ToggleTask handles PATCH /api/admin/tasks/:id {isActive}
func (s *AdminService) ToggleTask(c *fiber.Ctx) error {
	task, status, err := s.findTask(c)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "isActive required"})
	}

	if err := s.DB.Model(task).Update("is_active", *req.IsActive).Error; err != nil {
		log.Printf("DB Error toggling task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update task status"})
	}
	return c.JSON(fiber.Map{"success": true, "task": task})
}

// DeleteTask handles DELETE /api/admin/tasks/:id
func (s *AdminService) DeleteTask(c *fiber.Ctx) error {
	task, status, err := s.findTask(c)
	if err != nil {
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.DB.Delete(task).Error; err != nil {
		log.Printf("DB Error deleting task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete task"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// UploadTaskImage handles POST /api/admin/tasks/upload-image (multipart).
// The image lands in R2 and the public URL comes back for the task form.
func (s *AdminService) UploadTaskImage(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file"})
	}

	ext := filepath.Ext(fileHeader.Filename)
	base := strings.TrimSuffix(fileHeader.Filename, ext)
	key := fmt.Sprintf("tasks/%s-%s%s", slug.Make(base), uuid.NewString()[:8], ext)

	url, err := utils.UploadFileToR2(fileHeader, key)
	if err != nil {
		log.Printf("R2 upload failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload image"})
	}

	return c.JSON(fiber.Map{"success": true, "url": url})
}

// --- stats ---

// Stats handles GET /api/admin/stats?range=24h|7d|30d
func (s *AdminService) Stats(c *fiber.Ctx) error {
	now := time.Now().UTC()
	var rangeStart time.Time
	switch c.Query("range", "7d") {
	case "24h":
		rangeStart = now.Add(-24 * time.Hour)
	case "30d":
		rangeStart = now.AddDate(0, 0, -30)
	default:
		rangeStart = now.AddDate(0, 0, -7)
	}

	counts := map[string]int64{}
	for name, query := range map[string]*gorm.DB{
		"totalUsers":       s.DB.Model(&models.User{}),
		"activeUsers":      s.DB.Model(&models.User{}).Where("twitter_username IS NOT NULL"),
		"totalTasks":       s.DB.Model(&models.Task{}),
		"totalCompletions": s.DB.Model(&models.TaskCompletion{}),
	} {
		var n int64
		if err := query.Count(&n).Error; err != nil {
			log.Printf("DB Error counting %s: %v", name, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
		}
		counts[name] = n
	}

	var totalDistributed int64
	if err := s.DB.Model(&models.TaskCompletion{}).
		Select("COALESCE(SUM(bones_earned), 0)").
		Scan(&totalDistributed).Error; err != nil {
		log.Printf("DB Error summing distributed bones: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	dayStart, _ := DayRange(now)
	var todayCompletions int64
	if err := s.DB.Model(&models.TaskCompletion{}).
		Where("completed_at >= ?", dayStart).
		Count(&todayCompletions).Error; err != nil {
		log.Printf("DB Error counting today's completions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	var rangeCompletions int64
	if err := s.DB.Model(&models.TaskCompletion{}).
		Where("completed_at >= ?", rangeStart).
		Count(&rangeCompletions).Error; err != nil {
		log.Printf("DB Error counting range completions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	growth, err := s.weeklySignupGrowth(now)
	if err != nil {
		log.Printf("DB Error computing growth: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}

	type performer struct {
		Username    *string `json:"username"`
		Bones       int     `json:"bones"`
		Completions int64   `json:"completions"`
	}
	var topUsers []models.User
	if err := s.DB.Where("twitter_username IS NOT NULL").
		Order("bones DESC").Limit(5).
		Find(&topUsers).Error; err != nil {
		log.Printf("DB Error fetching top performers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
	}
	performers := make([]performer, len(topUsers))
	for i, u := range topUsers {
		var completions int64
		if err := s.DB.Model(&models.TaskCompletion{}).Where("user_id = ?", u.ID).Count(&completions).Error; err != nil {
			log.Printf("DB Error counting performer completions: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch stats"})
		}
		performers[i] = performer{Username: u.TwitterUsername, Bones: u.Bones, Completions: completions}
	}

	return c.JSON(fiber.Map{"stats": fiber.Map{
		"totalUsers":            counts["totalUsers"],
		"activeUsers":           counts["activeUsers"],
		"totalTasks":            counts["totalTasks"],
		"totalCompletions":      counts["totalCompletions"],
		"totalBonesDistributed": totalDistributed,
		"todayCompletions":      todayCompletions,
		"rangeCompletions":      rangeCompletions,
		"weeklyGrowth":          growth,
		"topPerformers":         performers,
	}})
}

// weeklySignupGrowth compares signups in the last 7 days against the 7 days
// before that, as a percentage.
func (s *AdminService) weeklySignupGrowth(now time.Time) (float64, error) {
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var thisWeek, lastWeek int64
	if err := s.DB.Model(&models.User{}).Where("created_at >= ?", weekAgo).Count(&thisWeek).Error; err != nil {
		return 0, err
	}
	if err := s.DB.Model(&models.User{}).
		Where("created_at >= ? AND created_at < ?", twoWeeksAgo, weekAgo).
		Count(&lastWeek).Error; err != nil {
		return 0, err
	}

	if lastWeek == 0 {
		if thisWeek > 0 {
			return 100, nil
		}
		return 0, nil
	}
	growth := float64(thisWeek-lastWeek) / float64(lastWeek) * 100
	return float64(int(growth*10)) / 10, nil
}

// --- CSV invite import ---

var inviteHeaderPatterns = map[string]*regexp.Regexp{
	"externalUserId":         regexp.MustCompile(`(?i)user id`),
	"signupWalletAddress":    regexp.MustCompile(`(?i)signup wallet address`),
	"userName":               regexp.MustCompile(`(?i)user name`),
	"invitedByUsername":      regexp.MustCompile(`(?i)invited by username`),
	"invitedBySignupAddress": regexp.MustCompile(`(?i)invited by signup address`),
	"createdAt":              regexp.MustCompile(`(?i)created at`),
}

var inviteDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006",
}

// UploadInvites handles POST /api/admin/invites/upload (multipart CSV).
// Rows are matched by header name, quoted values and odd date formats are
// tolerated, and duplicates on external user id are skipped.
func (s *AdminService) UploadInvites(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing file"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unreadable file"})
	}
	defer file.Close()

	invites, skipped, err := parseInviteCSV(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if len(invites) == 0 {
		return c.JSON(fiber.Map{"inserted": 0, "skipped": skipped})
	}

	result := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&invites)
	if result.Error != nil {
		log.Printf("DB Error importing invites: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to import invites"})
	}

	inserted := result.RowsAffected
	skipped += int64(len(invites)) - inserted
	return c.JSON(fiber.Map{"inserted": inserted, "skipped": skipped})
}

// parseInviteCSV reads the whole CSV, mapping columns by header. Rows with
// no external user id are counted as skipped, not errors.
func parseInviteCSV(r io.Reader) ([]models.Invite, int64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("empty or unreadable CSV")
	}

	index := map[string]int{}
	for name, pattern := range inviteHeaderPatterns {
		index[name] = -1
		for i, col := range header {
			if pattern.MatchString(col) {
				index[name] = i
				break
			}
		}
	}
	if index["externalUserId"] == -1 {
		return nil, 0, fmt.Errorf("CSV has no user id column")
	}

	var invites []models.Invite
	var skipped int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		externalID := cell(record, index["externalUserId"])
		if externalID == "" {
			skipped++
			continue
		}

		invite := models.Invite{
			ExternalUserID:         externalID,
			SignupWalletAddress:    cellPtr(record, index["signupWalletAddress"]),
			UserName:               cellPtr(record, index["userName"]),
			InvitedByUsername:      cellPtr(record, index["invitedByUsername"]),
			InvitedBySignupAddress: cellPtr(record, index["invitedBySignupAddress"]),
			CreatedAt:              parseInviteDate(cell(record, index["createdAt"])),
		}
		invites = append(invites, invite)
	}

	return invites, skipped, nil
}

func parseInviteDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range inviteDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(record[i]), `"`))
}

func cellPtr(record []string, i int) *string {
	v := cell(record, i)
	if v == "" {
		return nil
	}
	return &v
}

// --- helpers ---

func (s *AdminService) findTask(c *fiber.Ctx) (*models.Task, int, error) {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return nil, fiber.StatusBadRequest, errors.New("Invalid task ID")
	}
	var task models.Task
	if err := s.DB.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.StatusNotFound, errors.New("Task not found")
		}
		log.Printf("DB Error fetching task: %v", err)
		return nil, fiber.StatusInternalServerError, errors.New("DB error")
	}
	return &task, 0, nil
}

func parseScheduledDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// adminWallet returns the caller wallet stashed by the admin middleware.
func adminWallet(c *fiber.Ctx) string {
	if wallet, ok := c.Locals("admin_wallet").(string); ok {
		return wallet
	}
	return ""
}
