package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// ServiceArea is a geographic area scans are run against. The center is
// treated as immutable while any scan referencing the area is in flight.
type ServiceArea struct {
	BaseModel

	Name        string  `json:"name" gorm:"size:255;not null"`
	State       string  `json:"state" gorm:"size:50"`
	CenterLat   float64 `json:"center_lat" gorm:"not null"`
	CenterLng   float64 `json:"center_lng" gorm:"not null"`
	RadiusMiles float64 `json:"radius_miles" gorm:"not null;default:5"`
	IsActive    bool    `json:"is_active" gorm:"default:true;index"`
}

// TableHeaders returns table headers for CLI output
func (s ServiceArea) TableHeaders() []string {
	return []string{"ID", "Name", "State", "Center", "Radius (mi)", "Active"}
}

// TableRow returns table row for CLI output
func (s ServiceArea) TableRow() []string {
	return []string{
		fmt.Sprintf("%d", s.ID),
		s.Name,
		s.State,
		fmt.Sprintf("%.5f,%.5f", s.CenterLat, s.CenterLng),
		fmt.Sprintf("%.1f", s.RadiusMiles),
		fmt.Sprintf("%t", s.IsActive),
	}
}

// CreateServiceArea saves a new service area
func (conn *DatabaseConnection) CreateServiceArea(area *ServiceArea) (*ServiceArea, error) {
	if err := conn.db.Create(area).Error; err != nil {
		log.Error().Err(err).Str("name", area.Name).Msg("ServiceArea creation failed")
		return nil, err
	}
	return area, nil
}

// GetServiceAreaByID retrieves a service area by ID
func (conn *DatabaseConnection) GetServiceAreaByID(id uint) (*ServiceArea, error) {
	var area ServiceArea
	if err := conn.db.First(&area, id).Error; err != nil {
		return nil, err
	}
	return &area, nil
}

// ListActiveServiceAreas lists all active service areas
func (conn *DatabaseConnection) ListActiveServiceAreas() ([]*ServiceArea, error) {
	var areas []*ServiceArea
	if err := conn.db.Where("is_active = ?", true).Order("name asc").Find(&areas).Error; err != nil {
		log.Error().Err(err).Msg("Unable to list active service areas")
		return nil, err
	}
	return areas, nil
}

// ListServiceAreas lists all service areas
func (conn *DatabaseConnection) ListServiceAreas() ([]*ServiceArea, error) {
	var areas []*ServiceArea
	if err := conn.db.Order("name asc").Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

// UpdateServiceArea updates a service area
func (conn *DatabaseConnection) UpdateServiceArea(area *ServiceArea) (*ServiceArea, error) {
	if err := conn.db.Save(area).Error; err != nil {
		log.Error().Err(err).Uint("id", area.ID).Msg("Unable to update service area")
		return nil, err
	}
	return area, nil
}

// DeleteServiceArea deletes a service area
func (conn *DatabaseConnection) DeleteServiceArea(id uint) error {
	if err := conn.db.Delete(&ServiceArea{}, id).Error; err != nil {
		log.Error().Err(err).Uint("id", id).Msg("Unable to delete service area")
		return err
	}
	return nil
}
