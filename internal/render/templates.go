package render

import "github.com/notifyhub/rental-notifier/internal/domain"

// message is the copy for one event kind. Body templates see Event.Data
// directly, so {{.itemTitle}} reads data["itemTitle"].
type message struct {
	subject string
	text    string // messenger / push body, without the trailing link
	html    string // email fragment, wrapped by the layout
	path    string // appended to the base URL for the call-to-action link
	action  string // email button label
}

var messages = map[domain.EventKind]message{
	domain.EventItemApproved: {
		subject: "Your listing is approved",
		text:    `Your listing "{{.itemTitle}}" passed moderation and is now published.`,
		html:    `<h2>Listing approved</h2><p>Your listing <strong>"{{.itemTitle}}"</strong> passed moderation and is now published.</p>`,
		path:    "/items/{{urlpath .itemId}}",
		action:  "View listing",
	},
	domain.EventItemRejected: {
		subject: "Listing rejected",
		text: `Your listing "{{.itemTitle}}" was rejected by a moderator.
Reason: {{or .reason "not specified"}}

You can edit the listing and submit it again.`,
		html: `<h2>Listing rejected</h2><p>Your listing <strong>"{{.itemTitle}}"</strong> was rejected by a moderator.</p>` +
			`<p><strong>Reason:</strong> {{or .reason "not specified"}}</p><p>You can edit the listing and submit it again.</p>`,
		path:   "/#profile",
		action: "Edit listing",
	},
	domain.EventVerificationApproved: {
		subject: "Verification complete",
		text:    "Congratulations! Your account is verified. You can now list items for rent.",
		html:    `<h2>Verification complete</h2><p>Congratulations! Your account is verified.</p><p>You can now list items for rent.</p>`,
		path:    "/#profile",
		action:  "Open profile",
	},
	domain.EventVerificationRejected: {
		subject: "Verification rejected",
		text: `Your verification request was rejected.
Reason: {{or .reason "not specified"}}

You can upload your documents again.`,
		html: `<h2>Verification rejected</h2><p>Your verification request was rejected.</p>` +
			`<p><strong>Reason:</strong> {{or .reason "not specified"}}</p><p>You can upload your documents again from your profile.</p>`,
		path:   "/#profile",
		action: "Open profile",
	},
	domain.EventBookingNew: {
		subject: "New booking",
		text: `You have a new booking!
Listing: {{.itemTitle}}
Renter: {{.renterName}}
Period: {{.startDate}} - {{.endDate}}
Total: {{.totalPrice}}`,
		html: `<h2>New booking</h2><p>You have a new booking for <strong>"{{.itemTitle}}"</strong>.</p>` +
			`<table><tr><td><strong>Renter:</strong></td><td>{{.renterName}}</td></tr>` +
			`<tr><td><strong>Period:</strong></td><td>{{.startDate}} - {{.endDate}}</td></tr>` +
			`<tr><td><strong>Total:</strong></td><td>{{.totalPrice}}</td></tr></table>`,
		path:   "/#bookings",
		action: "View bookings",
	},
	domain.EventBookingConfirmed: {
		subject: "Booking confirmed",
		text: `Your booking is confirmed!
Listing: {{.itemTitle}}
Period: {{.startDate}} - {{.endDate}}

Contact the owner to arrange the handover.`,
		html: `<h2>Booking confirmed</h2><p>Your booking for <strong>"{{.itemTitle}}"</strong> is confirmed.</p>` +
			`<p><strong>Period:</strong> {{.startDate}} - {{.endDate}}</p><p>Contact the owner to arrange the handover.</p>`,
		path:   "/#bookings",
		action: "View booking",
	},
	domain.EventBookingCancelled: {
		subject: "Booking cancelled",
		text: `A booking was cancelled.
Listing: {{.itemTitle}}
Reason: {{or .reason "not specified"}}`,
		html: `<h2>Booking cancelled</h2><p>The booking for <strong>"{{.itemTitle}}"</strong> was cancelled.</p>` +
			`<p><strong>Reason:</strong> {{or .reason "not specified"}}</p>`,
		path:   "/#bookings",
		action: "View bookings",
	},
	domain.EventBookingCompleted: {
		subject: "Rental completed",
		text: `The rental of "{{.itemTitle}}" is complete.

Please leave a review.`,
		html:   `<h2>Rental completed</h2><p>The rental of <strong>"{{.itemTitle}}"</strong> is complete.</p><p>Please leave a review.</p>`,
		path:   "/#bookings",
		action: "Leave a review",
	},
	domain.EventBookingRejected: {
		subject: "Booking rejected",
		text: `Your booking request was rejected.
Listing: {{.itemTitle}}
Reason: {{or .reason "not specified"}}

You can pick another listing or try again later.`,
		html: `<h2>Booking rejected</h2><p>Your booking request for <strong>"{{.itemTitle}}"</strong> was rejected.</p>` +
			`<p><strong>Reason:</strong> {{or .reason "not specified"}}</p><p>You can pick another listing or try again later.</p>`,
		path:   "/#bookings",
		action: "Find another listing",
	},
	domain.EventReviewReceived: {
		subject: "New review",
		text: `You received a new review!
Rating: {{stars .rating}}
{{.text}}`,
		html: `<h2>New review</h2><p>You received a new review.</p>` +
			`<p><strong>Rating:</strong> {{stars .rating}}</p><p>{{.text}}</p>`,
		path:   "/#profile",
		action: "Open profile",
	},
	domain.EventChatUnread: {
		subject: "Unread messages",
		text:    `You have {{.unreadCount}} unread messages in the chat about "{{.itemTitle}}".`,
		html:    `<h2>Unread messages</h2><p>You have <strong>{{.unreadCount}}</strong> unread messages in the chat about <strong>"{{.itemTitle}}"</strong>.</p>`,
		path:    "/#chat",
		action:  "Open chat",
	},
	domain.EventModerationPendingItem: {
		subject: "Listing awaiting moderation",
		text:    `The listing "{{.itemTitle}}" has been waiting for moderation for 30 minutes.`,
		html:    `<h2>Awaiting moderation</h2><p>The listing <strong>"{{.itemTitle}}"</strong> has been waiting for moderation for 30 minutes.</p>`,
		path:    "/#admin",
		action:  "Go to moderation",
	},
	domain.EventModerationPendingUser: {
		subject: "Verification awaiting review",
		text:    `The verification request from "{{.userName}}" has been waiting for 30 minutes.`,
		html:    `<h2>Awaiting verification</h2><p>The verification request from <strong>"{{.userName}}"</strong> has been waiting for 30 minutes.</p>`,
		path:    "/#admin",
		action:  "Go to moderation",
	},
	domain.EventRentalReturnReminder: {
		subject: "Return reminder",
		text:    `{{if .isOwner}}Reminder: the rental of "{{.itemTitle}}" to {{.renterName}} ends tomorrow.{{else}}Reminder: your rental of "{{.itemTitle}}" ends tomorrow.{{end}}`,
		html: `<h2>Return reminder</h2><p>{{if .isOwner}}Reminder: the rental of <strong>"{{.itemTitle}}"</strong> to <strong>{{.renterName}}</strong> ends tomorrow.` +
			`{{else}}Reminder: your rental of <strong>"{{.itemTitle}}"</strong> ends tomorrow.{{end}}</p>`,
		path:   "/#bookings",
		action: "View booking",
	},
	domain.EventReviewReminder: {
		subject: "Leave a review",
		text:    `How was renting "{{.itemTitle}}"? Your review helps other users.`,
		html:    `<h2>Rate your rental</h2><p>How was renting <strong>"{{.itemTitle}}"</strong>? Your review helps other users.</p>`,
		path:    "/#bookings",
		action:  "Leave a review",
	},
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #667eea; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0; font-size: 28px;">{{.Brand}}</h1>
  </div>
  <div style="background: #f9fafb; padding: 30px; border-radius: 0 0 10px 10px; border: 1px solid #e5e7eb; border-top: none;">
    {{.Body}}
    {{if .URL}}<p><a href="{{.URL}}" style="display: inline-block; background: #667eea; color: white; padding: 10px 20px; text-decoration: none; border-radius: 6px;">{{.Action}}</a></p>{{end}}
  </div>
  <div style="text-align: center; padding: 20px; color: #9ca3af; font-size: 12px;">
    <p style="margin: 0;">{{.Brand}}</p>
  </div>
</body>
</html>`
