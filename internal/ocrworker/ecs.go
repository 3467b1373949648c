package ocrworker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/asiafilings/filing-etl-worker/internal/logging"
)

// ecsTaskIdentity identifies the ECS task this process is running as,
// discovered from the container metadata endpoint, grounded on
// original_source/ocr_worker.py's _discover_ecs_task_identity.
type ecsTaskIdentity struct {
	Cluster string
	TaskARN string
}

func discoverECSTaskIdentity(log *logging.Logger) *ecsTaskIdentity {
	uri := os.Getenv("ECS_CONTAINER_METADATA_URI_V4")
	if uri == "" {
		log.Warn("ECS_CONTAINER_METADATA_URI_V4 not set, scale-in protection disabled")
		return nil
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(uri + "/task")
	if err != nil {
		log.Warn("failed to reach ECS task metadata endpoint", "error", err)
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Cluster string `json:"Cluster"`
		TaskARN string `json:"TaskARN"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Warn("failed to parse ECS task metadata", "error", err)
		return nil
	}
	if body.Cluster == "" || body.TaskARN == "" {
		log.Warn("ECS task metadata missing Cluster/TaskARN")
		return nil
	}
	return &ecsTaskIdentity{Cluster: body.Cluster, TaskARN: body.TaskARN}
}

// ScaleInProtection wraps the ECS task-protection control API,
// self-disabling for the process lifetime on any failure
// (SPEC_FULL.md §9).
type ScaleInProtection struct {
	identity *ecsTaskIdentity
	enabled  bool
	minutes  int
	log      *logging.Logger
	updateFn func(ctx context.Context, cluster, taskARN string, on bool, minutes int) error
}

// SetUpdateFn injects the function that performs the task-protection
// update (in this repository, only tests inject one). Left nil,
// setProtection is a no-op success.
func (s *ScaleInProtection) SetUpdateFn(fn func(ctx context.Context, cluster, taskARN string, on bool, minutes int) error) {
	s.updateFn = fn
}

// NewScaleInProtection discovers the ECS task identity (if any) and
// binds the configured protection window. enabled reflects both the
// ECS_SCALE_IN_PROTECTION_ENABLED flag and successful task discovery.
func NewScaleInProtection(configEnabled bool, minutes int, log *logging.Logger) *ScaleInProtection {
	if !configEnabled {
		return &ScaleInProtection{enabled: false, log: log}
	}
	identity := discoverECSTaskIdentity(log)
	return &ScaleInProtection{identity: identity, enabled: identity != nil, minutes: minutes, log: log}
}

// ProtectOn sets task protection ON for the configured window. On
// failure, protection is disabled for the remaining process lifetime.
func (s *ScaleInProtection) ProtectOn(ctx context.Context) {
	if !s.enabled || s.identity == nil {
		return
	}
	if err := s.setProtection(ctx, true); err != nil {
		s.log.Warn("failed to enable scale-in protection, disabling feature", "error", err)
		s.enabled = false
	}
}

// ProtectOff disables task protection in the processing loop's
// "finally" phase. On failure, protection is disabled for the
// remaining process lifetime (it would otherwise remain stuck ON).
func (s *ScaleInProtection) ProtectOff(ctx context.Context) {
	if !s.enabled || s.identity == nil {
		return
	}
	if err := s.setProtection(ctx, false); err != nil {
		s.log.Warn("failed to disable scale-in protection, disabling feature", "error", err)
		s.enabled = false
	}
}

// setProtection passes the identity's Cluster/TaskARN, the on/off flag
// and s.minutes to the injected update function. No ECS control-plane
// client is built in this package and the binaries inject no update
// function, so without one no UpdateTaskProtection call is made and
// setProtection reports success.
func (s *ScaleInProtection) setProtection(ctx context.Context, on bool) error {
	if s.identity == nil {
		return fmt.Errorf("no ECS task identity")
	}
	if s.updateFn != nil {
		return s.updateFn(ctx, s.identity.Cluster, s.identity.TaskARN, on, s.minutes)
	}
	return nil
}
