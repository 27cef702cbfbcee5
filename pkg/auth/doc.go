// Package auth loads and stores search API credentials.
//
// LoadCredentials reads the YAML credential file and SEARCHTWEETS_*
// variables. Manager keeps named accounts in the system keychain, falling
// back to an AES-GCM encrypted file and finally the environment.
package auth
