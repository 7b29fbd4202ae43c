// Package abacus contains global constants shared by the abacus captcha
// gatekeeper.
package abacus

import "time"

// Version is the current version of abacus.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// APIPrefix is the path prefix every JSON endpoint is mounted under.
const APIPrefix = "/api/"

// DefaultDailyLimit is the number of challenges a user may solve per
// calendar day.
const DefaultDailyLimit = 10

// DefaultCooldown is the minimum spacing between two successful solves by the
// same user.
const DefaultCooldown = 30 * time.Second

// DefaultChallengeTTL is how long an issued challenge stays answerable.
const DefaultChallengeTTL = 5 * time.Minute

// DefaultReward is the number of credits awarded for one correct answer.
const DefaultReward = 1

// DefaultUserHeader is the trusted request header that carries the user
// identifier when JWT authentication is not configured.
const DefaultUserHeader = "X-Abacus-User"
