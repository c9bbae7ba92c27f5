package broker

import "github.com/nova-labs/messagemesh/pkg/logger"

func logPublishFailure(typeTag string, err error) {
	logger.L().Error("publish failed", "type", typeTag, "error", err)
}
