package tracker

import (
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"github.com/zksecurity/zkvm-benchmarks/pkg/lib/status"
)

// SudoUser selects the user that invoked the harness through sudo.
const SudoUser = "sudo"

// ResolveCredential turns a run-as spec into the credential applied to the
// child. An empty spec keeps the harness identity and returns nil.
//
// SudoUser drops to SUDO_UID and SUDO_GID, and keeps the harness identity when
// they are unset. Any other spec has the form USER[:GROUP], where both parts
// may be names or numeric ids. Without GROUP the user's primary group is used.
//
// The child's supplementary groups are replaced by those of the target user,
// or cleared when the user has no passwd entry, so none of the harness's
// groups survive the drop.
func ResolveCredential(spec string, getenv func(string) string) (*syscall.Credential, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "":
		return nil, nil
	case SudoUser:
		return sudoCredential(getenv)
	}

	parts := strings.Split(spec, ":")
	if len(parts) > 2 {
		return nil, status.InvalidArgumentErrorf("run-as spec %q had too many parts: expected USER[:GROUP]", spec)
	}
	uid, primaryGID, groups, err := lookupUser(parts[0])
	if err != nil {
		return nil, err
	}
	gid := primaryGID
	if len(parts) == 2 && parts[1] != "" {
		if gid, err = lookupGroup(parts[1]); err != nil {
			return nil, err
		}
	}
	if gid < 0 {
		return nil, status.InvalidArgumentErrorf("user %q has no primary group; specify USER:GROUP", parts[0])
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid), Groups: groups}, nil
}

func sudoCredential(getenv func(string) string) (*syscall.Credential, error) {
	uidStr, gidStr := getenv("SUDO_UID"), getenv("SUDO_GID")
	if uidStr == "" {
		logger.Debug().Msg("SUDO_UID not set, child keeps the harness identity")
		return nil, nil
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return nil, status.InvalidArgumentErrorf("malformed SUDO_UID %q", uidStr)
	}
	gid := uid
	if gidStr != "" {
		if gid, err = strconv.ParseUint(gidStr, 10, 32); err != nil {
			return nil, status.InvalidArgumentErrorf("malformed SUDO_GID %q", gidStr)
		}
	}
	groups := []uint32{}
	if u, err := user.LookupId(uidStr); err == nil {
		groups = supplementaryGroups(u)
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid), Groups: groups}, nil
}

// lookupUser returns the uid, primary gid and supplementary groups of spec.
// Numeric uids that do not name an existing user are accepted with an unknown
// (-1) primary group and no supplementary groups.
func lookupUser(spec string) (int64, int64, []uint32, error) {
	if spec == "" {
		return 0, 0, nil, status.InvalidArgumentErrorf("run-as spec is missing a user")
	}
	if id, err := strconv.ParseUint(spec, 10, 32); err == nil {
		u, err := user.LookupId(spec)
		if err != nil {
			if _, ok := err.(user.UnknownUserIdError); ok {
				return int64(id), -1, []uint32{}, nil
			}
			return 0, 0, nil, status.InvalidArgumentErrorf("uid lookup failed: %s", err)
		}
		gid, _ := strconv.ParseInt(u.Gid, 10, 64)
		return int64(id), gid, supplementaryGroups(u), nil
	}
	u, err := user.Lookup(spec)
	if err != nil {
		return 0, 0, nil, status.InvalidArgumentErrorf("user lookup failed: %s", err)
	}
	uid, err := strconv.ParseInt(u.Uid, 10, 64)
	if err != nil {
		return 0, 0, nil, status.InvalidArgumentErrorf("user %q has non-numeric uid %q", spec, u.Uid)
	}
	gid, err := strconv.ParseInt(u.Gid, 10, 64)
	if err != nil {
		gid = -1
	}
	return uid, gid, supplementaryGroups(u), nil
}

// supplementaryGroups lists the numeric group ids u belongs to. A user whose
// groups cannot be listed gets none.
func supplementaryGroups(u *user.User) []uint32 {
	groups := []uint32{}
	ids, err := u.GroupIds()
	if err != nil {
		logger.Debug().Err(err).Str("user", u.Username).Msg("cannot list supplementary groups")
		return groups
	}
	for _, id := range ids {
		gid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(gid))
	}
	return groups
}

func lookupGroup(spec string) (int64, error) {
	if id, err := strconv.ParseUint(spec, 10, 32); err == nil {
		return int64(id), nil
	}
	g, err := user.LookupGroup(spec)
	if err != nil {
		return 0, status.InvalidArgumentErrorf("group lookup failed: %s", err)
	}
	gid, err := strconv.ParseInt(g.Gid, 10, 64)
	if err != nil {
		return 0, status.InvalidArgumentErrorf("group %q has non-numeric gid %q", spec, g.Gid)
	}
	return gid, nil
}
