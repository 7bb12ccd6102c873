// Package secrets resolves ${secret:name} references in configuration
// values, such as the Redis password, from environment variables and
// mounted secret files.
//
//	store:
//	  redis:
//	    password: "${secret:redis-password}"
//
// With the default providers the value is read from
// SENTINEL_SECRET_REDIS_PASSWORD, then from <secrets.dir>/redis-password.
package secrets
