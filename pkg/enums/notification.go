package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeSwapUpdate         NotificationType = "swap_update"
	NotificationTypeDeliveryCode       NotificationType = "delivery_code"
	NotificationTypeSettlement         NotificationType = "settlement"
	NotificationTypeDisputeUpdate      NotificationType = "dispute_update"
	NotificationTypeDeadlineReminder   NotificationType = "deadline_reminder"
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeSwapUpdate,
	NotificationTypeDeliveryCode,
	NotificationTypeSettlement,
	NotificationTypeDisputeUpdate,
	NotificationTypeDeadlineReminder,
	NotificationTypeSystemAnnouncement,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
