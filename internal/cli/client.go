package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// FlowResponse — flow из API.
type FlowResponse struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	WebsiteID      string `json:"website_id"`
	Name           string `json:"name"`
	IsActive       bool   `json:"is_active"`
	CurrentVersion int    `json:"current_version"`
	CreatedAt      string `json:"created_at"`
}

// FlowVersionResponse — версия flow из API.
type FlowVersionResponse struct {
	FlowID    string           `json:"flow_id"`
	Version   int              `json:"version"`
	Steps     []map[string]any `json:"steps"`
	CreatedAt string           `json:"created_at"`
}

// FlowStatsResponse — статистика flow из API.
type FlowStatsResponse struct {
	UsersProcessed      int64   `json:"users_processed"`
	EmailsSent          int64   `json:"emails_sent"`
	WebhooksSent        int64   `json:"webhooks_sent"`
	SubscribersMoved    int64   `json:"subscribers_moved"`
	SubscribersRemoved  int64   `json:"subscribers_removed"`
	SubscribersDeleted  int64   `json:"subscribers_deleted"`
	AvgProcessingMillis float64 `json:"avg_processing_millis"`
}

// TemplateResponse — шаблон письма из API.
type TemplateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	FromEmail string `json:"from_email"`
	CreatedAt string `json:"created_at"`
}

// ListResponse — список рассылки из API.
type ListResponse struct {
	ID          string `json:"id"`
	WebsiteID   string `json:"website_id"`
	Name        string `json:"name"`
	Subscribers int64  `json:"subscribers"`
	CreatedAt   string `json:"created_at"`
}

// ContactResponse — контакт из API.
type ContactResponse struct {
	ID        string `json:"id"`
	WebsiteID string `json:"website_id"`
	ListID    string `json:"list_id,omitempty"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// AutomationResponse — автоматизация из API.
type AutomationResponse struct {
	ContactID   string `json:"contact_id"`
	FlowID      string `json:"flow_id"`
	FlowVersion int    `json:"flow_version"`
	StepIndex   int    `json:"step_index"`
	Status      string `json:"status"`
	NextStepAt  string `json:"next_step_at"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	EnrolledAt  string `json:"enrolled_at"`
}

// DeliveryJobResponse — запись журнала доставки из API.
type DeliveryJobResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	ContactID   string `json:"contact_id"`
	FlowID      string `json:"flow_id"`
	StepIndex   int    `json:"step_index"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// SettingsResponse — настройки выполнения из API.
type SettingsResponse struct {
	FetchBatchSizePerProcess  int  `json:"fetch_batch_size_per_process"`
	MaxConcurrentProcesses    int  `json:"max_concurrent_processes"`
	RetryFailedJobs           bool `json:"retry_failed_jobs"`
	DefaultRetryDelaySec      int  `json:"default_retry_delay_sec"`
	EnableFlowParallelism     bool `json:"enable_flow_parallelism"`
	EnableTracking            bool `json:"enable_tracking"`
	MaxDailyEmailsPerCustomer int  `json:"max_daily_emails_per_customer"`
	ProcessWebhookInProcess   bool `json:"process_webhook_in_process"`
}

// GlobalStatsResponse — глобальная статистика из API.
type GlobalStatsResponse struct {
	TotalSubscribers  int64 `json:"total_subscribers"`
	TotalEmailsSent   int64 `json:"total_emails_sent"`
	TotalWebhooksSent int64 `json:"total_webhooks_sent"`
}

// --- Request types ---

// CreateFlowRequest — создание flow.
type CreateFlowRequest struct {
	Name       string          `json:"name"`
	CustomerID string          `json:"customer_id"`
	WebsiteID  string          `json:"website_id"`
	Steps      json.RawMessage `json:"steps,omitempty"`
}

// UpdateFlowRequest — обновление flow.
type UpdateFlowRequest struct {
	Name *string `json:"name,omitempty"`
}

// CreateTemplateRequest — создание шаблона.
type CreateTemplateRequest struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	FromEmail string `json:"from_email"`
}

// CreateContactRequest — создание контакта.
type CreateContactRequest struct {
	WebsiteID  string            `json:"website_id"`
	ListID     *string           `json:"list_id,omitempty"`
	Email      string            `json:"email"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EnrollRequest — подписка контакта на flow.
type EnrollRequest struct {
	ContactID string `json:"contact_id"`
	Version   *int   `json:"version,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Mailflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Flows ---

// ListFlows возвращает все flows.
func (c *Client) ListFlows() ([]FlowResponse, error) {
	var flows []FlowResponse
	err := c.list("/api/v1/flows", nil, &flows)
	return flows, err
}

// CreateFlow создаёт новый flow.
func (c *Client) CreateFlow(req CreateFlowRequest) (*FlowResponse, error) {
	var flow FlowResponse
	err := c.post("/api/v1/flows", req, &flow)
	return &flow, err
}

// GetFlow возвращает flow по ID.
func (c *Client) GetFlow(id string) (*FlowResponse, error) {
	var flow FlowResponse
	err := c.get("/api/v1/flows/"+id, &flow)
	return &flow, err
}

// UpdateFlow обновляет flow.
func (c *Client) UpdateFlow(id string, req UpdateFlowRequest) (*FlowResponse, error) {
	var flow FlowResponse
	err := c.put("/api/v1/flows/"+id, req, &flow)
	return &flow, err
}

// SetFlowActive включает/выключает flow.
func (c *Client) SetFlowActive(id string, active bool) error {
	body := map[string]bool{"is_active": active}
	return c.put("/api/v1/flows/"+id+"/active", body, nil)
}

// GetFlowStats возвращает счётчики flow.
func (c *Client) GetFlowStats(id string) (*FlowStatsResponse, error) {
	var stats FlowStatsResponse
	err := c.get("/api/v1/flows/"+id+"/stats", &stats)
	return &stats, err
}

// ListVersions возвращает версии flow.
func (c *Client) ListVersions(flowID string) ([]FlowVersionResponse, error) {
	var versions []FlowVersionResponse
	err := c.list("/api/v1/flows/"+flowID+"/versions", nil, &versions)
	return versions, err
}

// CreateVersion создаёт новую версию flow.
func (c *Client) CreateVersion(flowID string, steps json.RawMessage) (*FlowVersionResponse, error) {
	body := map[string]json.RawMessage{"steps": steps}
	var version FlowVersionResponse
	err := c.post("/api/v1/flows/"+flowID+"/versions", body, &version)
	return &version, err
}

// --- Enrollments ---

// EnrollContact подписывает контакт на flow.
func (c *Client) EnrollContact(flowID string, req EnrollRequest) (*AutomationResponse, error) {
	var automation AutomationResponse
	err := c.post("/api/v1/flows/"+flowID+"/enrollments", req, &automation)
	return &automation, err
}

// ListFlowAutomations возвращает автоматизации flow.
func (c *Client) ListFlowAutomations(flowID string) ([]AutomationResponse, error) {
	var automations []AutomationResponse
	err := c.list("/api/v1/flows/"+flowID+"/enrollments", nil, &automations)
	return automations, err
}

// PauseAutomation приостанавливает автоматизацию.
func (c *Client) PauseAutomation(flowID, contactID string) error {
	return c.post("/api/v1/flows/"+flowID+"/enrollments/"+contactID+"/pause", nil, nil)
}

// ResumeAutomation возобновляет автоматизацию.
func (c *Client) ResumeAutomation(flowID, contactID string) error {
	return c.post("/api/v1/flows/"+flowID+"/enrollments/"+contactID+"/resume", nil, nil)
}

// --- Templates ---

// ListTemplates возвращает все шаблоны.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", nil, &templates)
	return templates, err
}

// CreateTemplate создаёт шаблон.
func (c *Client) CreateTemplate(req CreateTemplateRequest) (*TemplateResponse, error) {
	var tpl TemplateResponse
	err := c.post("/api/v1/templates", req, &tpl)
	return &tpl, err
}

// GetTemplate возвращает шаблон по ID.
func (c *Client) GetTemplate(id string) (*TemplateResponse, error) {
	var tpl TemplateResponse
	err := c.get("/api/v1/templates/"+id, &tpl)
	return &tpl, err
}

// DeleteTemplate удаляет шаблон.
func (c *Client) DeleteTemplate(id string) error {
	return c.delete("/api/v1/templates/" + id)
}

// --- Lists ---

// ListLists возвращает списки сайта.
func (c *Client) ListLists(websiteID string) ([]ListResponse, error) {
	params := url.Values{}
	params.Set("website_id", websiteID)

	var lists []ListResponse
	err := c.list("/api/v1/lists", params, &lists)
	return lists, err
}

// CreateList создаёт список рассылки.
func (c *Client) CreateList(websiteID, name string) (*ListResponse, error) {
	body := map[string]string{"website_id": websiteID, "name": name}
	var list ListResponse
	err := c.post("/api/v1/lists", body, &list)
	return &list, err
}

// GetList возвращает список по ID.
func (c *Client) GetList(id string) (*ListResponse, error) {
	var list ListResponse
	err := c.get("/api/v1/lists/"+id, &list)
	return &list, err
}

// DeleteList удаляет список.
func (c *Client) DeleteList(id string) error {
	return c.delete("/api/v1/lists/" + id)
}

// --- Contacts ---

// ListContacts возвращает контакты сайта.
func (c *Client) ListContacts(websiteID string) ([]ContactResponse, error) {
	params := url.Values{}
	params.Set("website_id", websiteID)

	var contacts []ContactResponse
	err := c.list("/api/v1/contacts", params, &contacts)
	return contacts, err
}

// CreateContact создаёт контакт.
func (c *Client) CreateContact(req CreateContactRequest) (*ContactResponse, error) {
	var contact ContactResponse
	err := c.post("/api/v1/contacts", req, &contact)
	return &contact, err
}

// GetContact возвращает контакт по ID.
func (c *Client) GetContact(id string) (*ContactResponse, error) {
	var contact ContactResponse
	err := c.get("/api/v1/contacts/"+id, &contact)
	return &contact, err
}

// DeleteContact удаляет контакт (soft delete).
func (c *Client) DeleteContact(id string) error {
	return c.delete("/api/v1/contacts/" + id)
}

// MoveContact переносит контакт в список.
func (c *Client) MoveContact(id, listID string) error {
	body := map[string]string{"list_id": listID}
	return c.put("/api/v1/contacts/"+id+"/list", body, nil)
}

// RemoveContactFromList убирает контакт из текущего списка.
func (c *Client) RemoveContactFromList(id string) error {
	return c.delete("/api/v1/contacts/" + id + "/list")
}

// ListContactAutomations возвращает автоматизации контакта.
func (c *Client) ListContactAutomations(id string) ([]AutomationResponse, error) {
	var automations []AutomationResponse
	err := c.list("/api/v1/contacts/"+id+"/automations", nil, &automations)
	return automations, err
}

// ListContactDeliveries возвращает журнал доставок контакта.
func (c *Client) ListContactDeliveries(id string) ([]DeliveryJobResponse, error) {
	var jobs []DeliveryJobResponse
	err := c.list("/api/v1/contacts/"+id+"/deliveries", nil, &jobs)
	return jobs, err
}

// --- Deliveries ---

// ListDeliveries возвращает журнал доставки по статусу.
func (c *Client) ListDeliveries(status string, limit int) ([]DeliveryJobResponse, error) {
	params := url.Values{}
	params.Set("status", status)
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var jobs []DeliveryJobResponse
	err := c.list("/api/v1/deliveries", params, &jobs)
	return jobs, err
}

// GetDelivery возвращает запись журнала доставки по ID.
func (c *Client) GetDelivery(id string) (*DeliveryJobResponse, error) {
	var job DeliveryJobResponse
	err := c.get("/api/v1/deliveries/"+id, &job)
	return &job, err
}

// --- Settings & Stats ---

// GetSettings возвращает настройки выполнения.
func (c *Client) GetSettings() (*SettingsResponse, error) {
	var settings SettingsResponse
	err := c.get("/api/v1/settings", &settings)
	return &settings, err
}

// UpdateSettings сохраняет настройки выполнения.
func (c *Client) UpdateSettings(settings SettingsResponse) (*SettingsResponse, error) {
	var saved SettingsResponse
	err := c.put("/api/v1/settings", settings, &saved)
	return &saved, err
}

// GetGlobalStats возвращает глобальную статистику.
func (c *Client) GetGlobalStats() (*GlobalStatsResponse, error) {
	var stats GlobalStatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
