package codepipeline

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

func encodeHandle(pipeline, executionID string) string {
	return pipeline + ":" + executionID
}

func decodeHandle(handle string) (string, string, error) {
	name, id, ok := strings.Cut(handle, ":")
	if !ok || name == "" || id == "" {
		return "", "", goerr.New("malformed CodePipeline run handle", goerr.V("handle", handle))
	}
	return name, id, nil
}
