package shared

// GrantedRole is a role summary carried in an access token.
type GrantedRole struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GrantedPermission is a permission summary carried in an access token.
type GrantedPermission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Principal is the authenticated identity rebuilt from a validated access
// token. It reflects the claims as signed, not live database state.
type Principal struct {
	ID          int64               `json:"id"`
	Username    string              `json:"username"`
	Email       string              `json:"email"`
	Name        string              `json:"name"`
	Surname     string              `json:"surname"`
	Roles       []GrantedRole       `json:"roles"`
	Permissions []GrantedPermission `json:"permissions"`
	// Authorities is the uppercased, deduplicated permission name set.
	Authorities []string `json:"authorities"`
	// Token is the raw bearer token the principal was built from.
	Token string `json:"-"`
}

// HasAuthority reports whether the principal holds the authority.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasAnyAuthority reports whether the principal holds at least one authority.
// An empty list is always satisfied.
func (p *Principal) HasAnyAuthority(authorities ...string) bool {
	if len(authorities) == 0 {
		return p != nil
	}
	for _, a := range authorities {
		if p.HasAuthority(a) {
			return true
		}
	}
	return false
}
