// Package portal is the session and authorization backend of the dppd
// community portal.
//
// [Engine] ties together signed session cookies, the Redis session store,
// the role-mapping configuration and the permission evaluator. It is built
// once through [Builder] and is safe for concurrent use by HTTP handlers.
//
// # Failure policy
//
// Two policies govern storage errors. Security lookups (is this request
// authenticated?) fail closed: any error resolves to "no session", is
// logged at warn and counted. Content lookups (which role mappings exist?)
// fail soft to seeded defaults. Neither policy ever turns a storage error
// into a grant.
package portal
