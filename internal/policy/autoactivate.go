// Copyright (C) 2026 Link Policy Engine Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import "sort"

// AutoActivator is component C: given a device whose pending entry
// just drained, it decides whether to assume an already-configured
// link or walk the sorted candidate list and activate the first
// profile the device is willing to run.
type AutoActivator struct {
	manager Manager
	store   SettingsStore
}

// NewAutoActivator builds the auto-activation decider.
func NewAutoActivator(manager Manager, store SettingsStore) *AutoActivator {
	return &AutoActivator{manager: manager, store: store}
}

// Decide runs the decision for dev. It returns the ActiveSession it
// started, if any — callers other than tests can usually ignore the
// result, since the caller learns of the outcome through the normal
// device/session observer callbacks.
func (a *AutoActivator) Decide(dev Device) (ActiveSession, error) {
	if session, ok, err := a.tryAssume(dev); ok || err != nil {
		return session, err
	}
	return a.tryBestCandidate(dev)
}

// tryAssume honors a device's own hint that its current kernel
// configuration already matches a known profile: an externally or
// previously configured link is adopted rather than re-driven through
// the full activation sequence. The hint is only acted on once; a
// device that wants another pass after further kernel changes must
// return the hint again.
func (a *AutoActivator) tryAssume(dev Device) (ActiveSession, bool, error) {
	uuid, ok := dev.ConnectionToAssume()
	if !ok {
		return nil, false, nil
	}
	profile, ok := a.store.ProfileByUUID(uuid)
	if !ok {
		return nil, false, nil
	}
	if !dev.IsAvailableForUser(uuid) {
		return nil, false, nil
	}
	if boundDev, ok := a.manager.ConnectionDevice(profile); ok && boundDev.ID() != dev.ID() {
		return nil, false, nil
	}

	attrs := dev.LinkAttrs()
	if _, isSlave := profile.SlaveType(); isSlave {
		if !attrs.HasMaster() {
			return nil, false, nil
		}
	} else if !attrs.Up || attrs.HasMaster() {
		return nil, false, nil
	}

	specificObject, ok := dev.DevicePermits(profile)
	if !ok {
		return nil, false, nil
	}
	session, err := a.manager.Activate(profile, specificObject, dev, SubjectInternal, ActivationTypeAssume)
	return session, true, err
}

// tryBestCandidate walks dev's activatable profiles in priority order
// and activates the first one the device actually permits right now.
func (a *AutoActivator) tryBestCandidate(dev Device) (ActiveSession, error) {
	candidates := sortedCandidates(dev, dev.ActivatableProfiles())
	for _, profile := range candidates {
		if !profile.Visible() {
			continue
		}
		if profile.BlockedReason() != BlockedReasonNone {
			continue
		}
		if profile.RetriesRemaining() == 0 {
			continue
		}
		if _, isSlave := profile.SlaveType(); isSlave {
			continue
		}
		specificObject, ok := dev.DevicePermits(profile)
		if !ok {
			continue
		}
		return a.manager.Activate(profile, specificObject, dev, SubjectInternal, ActivationTypeFull)
	}
	return nil, nil
}

// sortedCandidates orders profiles by descending autoconnect priority,
// breaking ties by most-recently-connected first — a stable sort so
// profiles of equal priority and equal (typically zero/never-connected)
// timestamp keep the order the device driver returned them in.
func sortedCandidates(dev Device, profiles []Profile) []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i], out[j]
		if pi.AutoconnectPriority() != pj.AutoconnectPriority() {
			return pi.AutoconnectPriority() > pj.AutoconnectPriority()
		}
		return pi.LastConnectTimestamp() > pj.LastConnectTimestamp()
	})
	return out
}
