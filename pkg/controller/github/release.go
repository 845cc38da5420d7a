package github

import (
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/model"
)

// EventTypeRelease is the X-GitHub-Event value of release deliveries
const EventTypeRelease = "release"

// EventTypePing is sent by GitHub once when a webhook is created
const EventTypePing = "ping"

// ParseRelease extracts release metadata from a webhook body. Deliveries of other event types
// return nil without error. The result is informational and never decides whether a run starts.
func ParseRelease(eventType string, body []byte) (*model.ReleaseInfo, error) {
	if eventType != EventTypeRelease {
		return nil, nil
	}

	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse release event")
	}

	releaseEvent, ok := payload.(*github.ReleaseEvent)
	if !ok {
		return nil, goerr.New("unexpected payload type for release event")
	}

	return extractReleaseInfo(releaseEvent)
}

// extractReleaseInfo extracts release information from a GitHub release event
func extractReleaseInfo(event *github.ReleaseEvent) (*model.ReleaseInfo, error) {
	if event.GetRepo() == nil {
		return nil, goerr.New("missing repository information in release event")
	}
	if event.GetRelease() == nil {
		return nil, goerr.New("missing release information in release event")
	}

	// Get*() helpers are nil-safe
	info := &model.ReleaseInfo{
		Action:      event.GetAction(),
		Owner:       event.GetRepo().GetOwner().GetLogin(),
		Repo:        event.GetRepo().GetName(),
		TagName:     event.GetRelease().GetTagName(),
		ReleaseName: event.GetRelease().GetName(),
		CommitSHA:   event.GetRelease().GetTargetCommitish(),
		Sender:      event.GetSender().GetLogin(),
	}

	if info.Owner == "" || info.Repo == "" {
		return nil, goerr.New("missing required fields in release event",
			goerr.V("owner", info.Owner), goerr.V("repo", info.Repo))
	}

	return info, nil
}
