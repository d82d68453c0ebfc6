// Package alerts implements the rule evaluation engine and webhook delivery
// for CAI alerting. Rules are evaluated against location snapshots; webhooks
// are delivered to Teams, Slack, or generic HTTP targets.
package alerts
