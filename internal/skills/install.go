package skills

import (
	"strings"

	"github.com/buildd-ai/coordinatord/internal/dispatch"
	"github.com/buildd-ai/coordinatord/internal/kernelerr"
)

// DefaultAllowedPrefixes is the base allowlist for command-push installs;
// a workspace may extend it with its own configured prefixes.
var DefaultAllowedPrefixes = []string{"buildd skill install "}

// dangerousPatterns are shell metacharacters/constructs that would let an
// installerCommand string smuggle arbitrary execution (spec.md §4.10).
var dangerousPatterns = []string{"| sh", "|sh", "`", "$(", ";", "&&", "||", "rm -rf", ">", "<", "\n"}

// Bundle is the content-push payload, delivered verbatim as the
// SkillInstall event payload.
type Bundle struct {
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Content        string            `json:"content"`
	ContentHash    string            `json:"contentHash"`
	ReferenceFiles map[string]string `json:"referenceFiles,omitempty"`
}

// Installer runs the install pipeline's two mutually exclusive paths.
type Installer struct {
	store           *Store
	bus             *dispatch.Bus
	allowedPrefixes []string
}

// NewInstaller builds an installer with the default allowlist, extended
// by any workspace-configured prefixes.
func NewInstaller(store *Store, bus *dispatch.Bus, workspaceAllowedPrefixes []string) *Installer {
	prefixes := append([]string{}, DefaultAllowedPrefixes...)
	prefixes = append(prefixes, workspaceAllowedPrefixes...)
	return &Installer{store: store, bus: bus, allowedPrefixes: prefixes}
}

// InstallContentPush loads a skill by id and emits SkillInstall on the
// workspace channel; the runner dedups by contentHash against its
// on-disk .buildd-hash file.
func (i *Installer) InstallContentPush(workspaceID, skillID, targetLocalUiURL string) error {
	sk, err := i.store.GetByID(skillID)
	if err != nil {
		return err
	}
	if sk == nil {
		return kernelerr.NotFoundf("skill %s not found", skillID)
	}

	bundle := Bundle{
		Slug:        sk.Slug,
		Name:        sk.Name,
		Description: sk.Description,
		Content:     sk.Content,
		ContentHash: sk.ContentHash,
	}

	if i.bus != nil {
		payload := map[string]any{"bundle": bundle}
		if targetLocalUiURL != "" {
			payload["targetLocalUiUrl"] = targetLocalUiURL
		}
		i.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(workspaceID),
			Type:    dispatch.EventSkillInstall,
			Payload: payload,
		})
	}
	return nil
}

// InstallCommandPush validates installerCommand against the allowlist and
// dangerous-pattern denylist, then emits SkillInstall carrying the raw
// command for the runner to execute.
func (i *Installer) InstallCommandPush(workspaceID, installerCommand, skillSlug string) error {
	if !i.isAllowed(installerCommand) {
		return kernelerr.New(kernelerr.Forbidden, "installerCommand does not match an allowed prefix")
	}
	if pattern, ok := containsDangerousPattern(installerCommand); ok {
		return kernelerr.Newf(kernelerr.Forbidden, "installerCommand contains a disallowed pattern: %q", pattern)
	}

	if i.bus != nil {
		i.bus.Publish(dispatch.Event{
			Channel: dispatch.WorkspaceChannel(workspaceID),
			Type:    dispatch.EventSkillInstall,
			Payload: map[string]any{"installerCommand": installerCommand, "skillSlug": skillSlug},
		})
	}
	return nil
}

func (i *Installer) isAllowed(command string) bool {
	for _, prefix := range i.allowedPrefixes {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func containsDangerousPattern(command string) (string, bool) {
	for _, p := range dangerousPatterns {
		if strings.Contains(command, p) {
			return p, true
		}
	}
	return "", false
}
