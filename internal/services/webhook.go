package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taskboard-dev/taskboard/internal/models"
)

type DiscordWebhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbed struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Color       int                   `json:"color"`
	Fields      []DiscordWebhookField `json:"fields"`
	Timestamp   string                `json:"timestamp"`
}

type DiscordWebhookRequest struct {
	Username string         `json:"username"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields"`
	Timestamp int64        `json:"ts"`
}

type SlackWebhookRequest struct {
	Username    string            `json:"username"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

const (
	ColorRed    = 16711680 // #FF0000 - overdue
	ColorOrange = 16753920 // #FFA500 - due soon

	Username = "Taskboard"

	ReminderDueSoon = "due_soon"
	ReminderOverdue = "overdue"
)

// SendTaskReminder posts a due-date reminder to whichever webhook channels
// the project has configured.
func SendTaskReminder(project models.Project, task models.Task, kind string) error {
	if project.DiscordWebhook != "" {
		if err := sendDiscordReminder(project.DiscordWebhook, project, task, kind); err != nil {
			return fmt.Errorf("discord: %w", err)
		}
	}

	if project.SlackWebhook != "" {
		if err := sendSlackReminder(project.SlackWebhook, project, task, kind); err != nil {
			return fmt.Errorf("slack: %w", err)
		}
	}

	return nil
}

func reminderTitle(kind string) (string, int, string) {
	if kind == ReminderOverdue {
		return "Task overdue", ColorRed, "danger"
	}
	return "Task due soon", ColorOrange, "warning"
}

func dueDateText(task models.Task) string {
	if task.DueDate == nil {
		return "Unknown"
	}
	return task.DueDate.Format("2006-01-02 15:04 UTC")
}

func sendDiscordReminder(webhookURL string, project models.Project, task models.Task, kind string) error {
	title, color, _ := reminderTitle(kind)

	payload := DiscordWebhookRequest{
		Username: Username,
		Embeds: []DiscordEmbed{
			{
				Title:       title,
				Description: fmt.Sprintf("**%s** in project **%s**", task.Title, project.Name),
				Color:       color,
				Fields: []DiscordWebhookField{
					{Name: "Status", Value: task.Status, Inline: true},
					{Name: "Priority", Value: task.Priority, Inline: true},
					{Name: "Due", Value: dueDateText(task), Inline: true},
				},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	return postJSON(webhookURL, payload)
}

func sendSlackReminder(webhookURL string, project models.Project, task models.Task, kind string) error {
	title, _, color := reminderTitle(kind)

	payload := SlackWebhookRequest{
		Username: Username,
		Text:     title,
		Attachments: []SlackAttachment{
			{
				Color: color,
				Title: task.Title,
				Text:  fmt.Sprintf("Project: %s", project.Name),
				Fields: []SlackField{
					{Title: "Status", Value: task.Status, Short: true},
					{Title: "Priority", Value: task.Priority, Short: true},
					{Title: "Due", Value: dueDateText(task), Short: true},
				},
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return postJSON(webhookURL, payload)
}

func postJSON(url string, payload interface{}) error {
	body, err := json.Marshal(payload)

	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
