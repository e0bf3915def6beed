package analyzer

// dangerousFunctions are call-site tokens that move, mint, burn or re-own
// assets. Matched case-sensitively, including the opening parenthesis.
var dangerousFunctions = []string{
	"transfer(", "withdraw(", "burn(", "mint(", "destroy(",
	"delete(", "remove(", "clear(", "reset(", "init(",
	"admin(", "owner(", "delegate(", "approve(", "sign(",
	"withdraw_all(", "transfer_all(", "approve_all(",
	"set_admin(", "change_owner(", "upgrade(",
}

// suspiciousCalls are identifiers that commonly show up in drainers.
var suspiciousCalls = []string{
	"withdraw_all", "transfer_all", "approve_all", "burn_all",
	"destroy_all", "clear_all", "admin_transfer", "owner_only",
	"emergency_withdraw", "backdoor", "hidden_transfer",
}

// highRiskKeywords are matched case-insensitively anywhere in the source.
var highRiskKeywords = []string{
	"backdoor", "hidden", "secret", "admin_only", "owner_only",
	"emergency", "exploit", "hack", "steal", "drain", "rug_pull",
}

const (
	functionMarker = "fun "
	structMarker   = "struct "
	moduleMarker   = "// Module:"
)
