package db

import (
	"fmt"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Category is a business category, optionally nested under a parent category.
// Keywords attached to a category drive scan query expansion.
type Category struct {
	BaseModel

	Name     string    `json:"name" gorm:"size:255;not null"`
	Slug     string    `json:"slug" gorm:"size:255;not null;uniqueIndex"`
	ParentID *uint     `json:"parent_id,omitempty" gorm:"index"`
	Parent   *Category `json:"-" gorm:"foreignKey:ParentID"`
	IsActive bool      `json:"is_active" gorm:"default:true;index"`

	Keywords []Keyword `json:"keywords,omitempty" gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// BeforeCreate derives the slug from the name when not set explicitly.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	}
	return nil
}

// Keyword is a search term owned by a category. (category_id, text) is unique.
type Keyword struct {
	BaseModel

	CategoryID uint   `json:"category_id" gorm:"not null;uniqueIndex:idx_keyword_category_text"`
	Text       string `json:"text" gorm:"size:255;not null;uniqueIndex:idx_keyword_category_text"`
	Priority   int    `json:"priority" gorm:"default:0"`
	IsActive   bool   `json:"is_active" gorm:"default:true;index"`
}

// TableHeaders returns table headers for CLI output
func (c Category) TableHeaders() []string {
	return []string{"ID", "Name", "Slug", "Parent", "Active"}
}

// TableRow returns table row for CLI output
func (c Category) TableRow() []string {
	parent := "-"
	if c.ParentID != nil {
		parent = fmt.Sprintf("%d", *c.ParentID)
	}
	return []string{
		fmt.Sprintf("%d", c.ID),
		c.Name,
		c.Slug,
		parent,
		fmt.Sprintf("%t", c.IsActive),
	}
}

// CreateCategory saves a new category
func (conn *DatabaseConnection) CreateCategory(category *Category) (*Category, error) {
	if err := conn.db.Create(category).Error; err != nil {
		log.Error().Err(err).Str("name", category.Name).Msg("Category creation failed")
		return nil, err
	}
	return category, nil
}

// GetCategoryByID retrieves a category by ID with its keywords preloaded
func (conn *DatabaseConnection) GetCategoryByID(id uint) (*Category, error) {
	var category Category
	if err := conn.db.Preload("Keywords").First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// ListActiveCategories lists all active categories with their keywords
func (conn *DatabaseConnection) ListActiveCategories() ([]*Category, error) {
	var categories []*Category
	err := conn.db.Preload("Keywords", "is_active = ?", true).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&categories).Error
	if err != nil {
		log.Error().Err(err).Msg("Unable to list active categories")
		return nil, err
	}
	return categories, nil
}

// ListCategories lists all categories
func (conn *DatabaseConnection) ListCategories() ([]*Category, error) {
	var categories []*Category
	if err := conn.db.Preload("Keywords").Order("name asc").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateKeyword saves a new keyword for a category
func (conn *DatabaseConnection) CreateKeyword(keyword *Keyword) (*Keyword, error) {
	if err := conn.db.Create(keyword).Error; err != nil {
		log.Error().Err(err).Str("text", keyword.Text).Uint("category_id", keyword.CategoryID).Msg("Keyword creation failed")
		return nil, err
	}
	return keyword, nil
}

// ListActiveKeywordsForCategory lists active keywords of a category ordered by priority
func (conn *DatabaseConnection) ListActiveKeywordsForCategory(categoryID uint) ([]*Keyword, error) {
	var keywords []*Keyword
	err := conn.db.Where("category_id = ? AND is_active = ?", categoryID, true).
		Order("priority desc").
		Find(&keywords).Error
	if err != nil {
		return nil, err
	}
	return keywords, nil
}
