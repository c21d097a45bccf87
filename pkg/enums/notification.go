package enums

// NotificationAudience selects who a notification is addressed to.
type NotificationAudience string

const (
	NotificationAudienceCustomer NotificationAudience = "customer"
	NotificationAudienceStaff    NotificationAudience = "staff"
)

var notificationAudiences = []NotificationAudience{NotificationAudienceCustomer, NotificationAudienceStaff}

func (n NotificationAudience) String() string { return string(n) }

func (n NotificationAudience) IsValid() bool { return known(notificationAudiences, n) }

func ParseNotificationAudience(value string) (NotificationAudience, error) {
	return parse("notification audience", notificationAudiences, value)
}
