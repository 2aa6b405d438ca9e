package farm

// Authorizer answers role questions for governance entry points.
type Authorizer interface {
	IsGovernor(caller [20]byte) bool
	IsGuardian(caller [20]byte) bool
}

type denyAll struct{}

func (denyAll) IsGovernor([20]byte) bool { return false }
func (denyAll) IsGuardian([20]byte) bool { return false }

// Roles is a static Authorizer built from configured address lists. It is
// immutable once built.
type Roles struct {
	governors map[[20]byte]struct{}
	guardians map[[20]byte]struct{}
}

func NewRoles(governors, guardians [][20]byte) *Roles {
	r := &Roles{
		governors: make(map[[20]byte]struct{}, len(governors)),
		guardians: make(map[[20]byte]struct{}, len(guardians)),
	}
	for _, addr := range governors {
		r.governors[addr] = struct{}{}
	}
	for _, addr := range guardians {
		r.guardians[addr] = struct{}{}
	}
	return r
}

func (r *Roles) IsGovernor(caller [20]byte) bool {
	_, ok := r.governors[caller]
	return ok
}

func (r *Roles) IsGuardian(caller [20]byte) bool {
	_, ok := r.guardians[caller]
	return ok
}
