package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"collab-backend/internal/auth"
	"collab-backend/internal/model"
)

// ProjectHandler 프로젝트 CRUD 핸들러
type ProjectHandler struct {
	db *gorm.DB
}

// NewProjectHandler ProjectHandler 생성
func NewProjectHandler(db *gorm.DB) *ProjectHandler {
	return &ProjectHandler{db: db}
}

// CreateProjectRequest 프로젝트 생성 요청
type CreateProjectRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Content     string  `json:"content"`
	Type        string  `json:"type"`
	IsPublic    bool    `json:"is_public"`
}

// UpdateProjectRequest 프로젝트 수정 요청
type UpdateProjectRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Content     *string `json:"content,omitempty"`
	Type        *string `json:"type,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
}

// GetMyProjects 내 프로젝트 + 공유받은 프로젝트 목록
func (h *ProjectHandler) GetMyProjects(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var owned []model.Project
	if err := h.db.Where("user_id = ?", claims.UserID).
		Order("updated_at DESC").
		Find(&owned).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get projects",
		})
	}

	var shared []model.Project
	err := h.db.Joins("JOIN project_shares ON project_shares.project_id = projects.id").
		Where("project_shares.user_id = ? AND project_shares.is_active = ?", claims.UserID, true).
		Preload("User").
		Order("projects.updated_at DESC").
		Find(&shared).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get shared projects",
		})
	}

	return c.JSON(fiber.Map{
		"projects": owned,
		"shared":   shared,
	})
}

// CreateProject 프로젝트 생성
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)

	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "project title is required",
		})
	}

	projectType := req.Type
	if projectType == "" {
		projectType = "class"
	}

	project := model.Project{
		UserID:      claims.UserID,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Type:        projectType,
		IsPublic:    req.IsPublic,
		Version:     1,
	}
	if err := h.db.Create(&project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create project",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(project)
}

// GetProject 프로젝트 조회 (소유자, 활성 공유 사용자, 공개 프로젝트)
func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	var project model.Project
	if err := h.db.Preload("User").First(&project, projectID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "project not found",
		})
	}

	if !project.IsPublic {
		perm, err := auth.ProjectAccess(h.db, project.ID, claims.UserID)
		if err != nil || !perm.AtLeast(model.PermissionView) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied",
			})
		}
	}

	return c.JSON(project)
}

// UpdateProject 프로젝트 메타데이터/내용 수정 (소유자 전용).
// 실시간 업데이트 경로와 달리 version은 건드리지 않는다 - 저장 모달의
// 제목/설명 수정용 경로.
func (h *ProjectHandler) UpdateProject(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	project, errResp := h.requireOwnedProject(c, int64(projectID), claims.UserID)
	if project == nil {
		return errResp
	}

	var req UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}

	if len(updates) > 0 {
		if err := h.db.Model(project).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to update project",
			})
		}
	}

	return c.JSON(project)
}

// DeleteProject 프로젝트 삭제 (소유자 전용)
func (h *ProjectHandler) DeleteProject(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*auth.Claims)
	projectID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid project id",
		})
	}

	project, errResp := h.requireOwnedProject(c, int64(projectID), claims.UserID)
	if project == nil {
		return errResp
	}

	if err := h.db.Delete(project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete project",
		})
	}

	return c.JSON(fiber.Map{"message": "project deleted successfully"})
}

// requireOwnedProject 소유자 확인 후 프로젝트 반환.
// 실패 시 nil과 이미 작성된 에러 응답을 반환한다.
func (h *ProjectHandler) requireOwnedProject(c *fiber.Ctx, projectID, userID int64) (*model.Project, error) {
	var project model.Project
	err := h.db.First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "project not found",
		})
	}
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	}
	if project.UserID != userID {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "owner permission required",
		})
	}
	return &project, nil
}
