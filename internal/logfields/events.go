package logfields

import "go.uber.org/zap"

func EventProvider(val string) zap.Field {
	return zap.String("event_provider", val)
}

func Event(val string) zap.Field {
	return zap.String("event", val)
}

// DeliveryID is the unique id GitHub assigns to a webhook delivery.
func DeliveryID(val string) zap.Field {
	return zap.String("github.delivery_id", val)
}

func WebhookType(val string) zap.Field {
	return zap.String("github.webhook_type", val)
}

func Reason(val string) zap.Field {
	return zap.String("reason", val)
}

func LockKey(val string) zap.Field {
	return zap.String("lock_key", val)
}
