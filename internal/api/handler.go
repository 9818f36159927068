package api

import (
	"log/slog"

	"github.com/shaiso/Mailflow/internal/mq"
	"github.com/shaiso/Mailflow/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	flowRepo       *repo.FlowRepo
	contactRepo    *repo.ContactRepo
	listRepo       *repo.ListRepo
	templateRepo   *repo.TemplateRepo
	automationRepo *repo.AutomationRepo
	deliveryRepo   *repo.DeliveryRepo
	settingsRepo   *repo.SettingsRepo
	statsRepo      *repo.StatsRepo
	publisher      *mq.Publisher
	logger         *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	FlowRepo       *repo.FlowRepo
	ContactRepo    *repo.ContactRepo
	ListRepo       *repo.ListRepo
	TemplateRepo   *repo.TemplateRepo
	AutomationRepo *repo.AutomationRepo
	DeliveryRepo   *repo.DeliveryRepo
	SettingsRepo   *repo.SettingsRepo
	StatsRepo      *repo.StatsRepo
	Publisher      *mq.Publisher
	Logger         *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		flowRepo:       cfg.FlowRepo,
		contactRepo:    cfg.ContactRepo,
		listRepo:       cfg.ListRepo,
		templateRepo:   cfg.TemplateRepo,
		automationRepo: cfg.AutomationRepo,
		deliveryRepo:   cfg.DeliveryRepo,
		settingsRepo:   cfg.SettingsRepo,
		statsRepo:      cfg.StatsRepo,
		publisher:      cfg.Publisher,
		logger:         cfg.Logger,
	}
}
