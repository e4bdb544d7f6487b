// Package baileys adapts Baileys WhatsApp gateway webhooks to the inbox
// pipeline: envelope parsing and normalization, verify-token checks, the
// webhook handler that feeds core.EventProcessor, and the profile picture
// client used for contact enrichment.
package baileys
