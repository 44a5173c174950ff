package mail

import (
	"fmt"

	"github.com/bloodlink/blood-donor-backend/internal/queue"
)

type mailTemplate struct {
	subject func(queue.MailJob) string
	body    string
}

func fixed(s string) func(queue.MailJob) string { return func(queue.MailJob) string { return s } }

const layoutHead = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
`

const layoutFoot = `<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
<p style="color: #999; font-size: 12px;">BloodLink. This is an automated email, please do not reply.</p>
</div>
</body>
</html>
`

const requestDetails = `<ul>
<li><strong>Blood type:</strong> {{.BloodType}}</li>
<li><strong>City:</strong> {{.City}}</li>
{{if .DateNeeded}}<li><strong>Needed by:</strong> {{.DateNeeded}}</li>{{end}}
{{if .Reason}}<li><strong>Reason:</strong> {{.Reason}}</li>{{end}}
</ul>
`

var defaults = map[queue.MailKind]mailTemplate{
	queue.MailVerification: {
		subject: fixed("Verify your email - BloodLink"),
		body: layoutHead + `<h2 style="color: #C62828;">Welcome to BloodLink!</h2>
<p>Hi {{.Name}},</p>
<p>Please confirm your email address to activate your account.</p>
<div style="text-align: center; margin: 30px 0;">
<a href="{{.Link}}" style="background-color: #C62828; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Verify Email</a>
</div>
<p style="word-break: break-all; color: #666;">{{.Link}}</p>
<p>If you did not create an account, ignore this email.</p>
` + layoutFoot,
	},
	queue.MailPasswordReset: {
		subject: fixed("Reset your password - BloodLink"),
		body: layoutHead + `<h2 style="color: #C62828;">Reset your password</h2>
<p>Hi {{.Name}},</p>
<p>Use the link below to choose a new password. It expires in 15 minutes.</p>
<div style="text-align: center; margin: 30px 0;">
<a href="{{.Link}}" style="background-color: #C62828; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Reset Password</a>
</div>
<p style="word-break: break-all; color: #666;">{{.Link}}</p>
<p>If you did not request a reset, ignore this email.</p>
` + layoutFoot,
	},
	queue.MailDonorMatch: {
		subject: func(j queue.MailJob) string {
			return fmt.Sprintf("Urgent: a %s donor is needed in %s", j.BloodType, j.City)
		},
		body: layoutHead + `<h2 style="color: #C62828;">Someone near you needs blood</h2>
<p>Hi {{.Name}},</p>
<p>A new request matches your blood type and city.</p>
` + requestDetails + `{{if .Link}}<p><a href="{{.Link}}">Open BloodLink to accept the request</a></p>{{end}}
<p>Thank you for being a donor.</p>
` + layoutFoot,
	},
	queue.MailRequestAccepted: {
		subject: fixed("A donor accepted your blood request"),
		body: layoutHead + `<h2 style="color: #2E7D32;">Good news, {{.Name}}!</h2>
<p><strong>{{.CounterpartName}}</strong> accepted your request #{{.RequestID}}.</p>
{{if .CounterpartPhone}}<p>You can reach the donor at <strong>{{.CounterpartPhone}}</strong>.</p>{{end}}
<p>Mark the request fulfilled once the donation is done.</p>
` + layoutFoot,
	},
	queue.MailAcceptanceCancelled: {
		subject: fixed("A donor withdrew from your blood request"),
		body: layoutHead + `<h2 style="color: #C62828;">Your request is open again</h2>
<p>Hi {{.Name}},</p>
<p>{{.CounterpartName}} can no longer donate for request #{{.RequestID}}. It is active again and visible to other donors.</p>
` + layoutFoot,
	},
	queue.MailDonorCancelled: {
		subject: fixed("You were released from a blood request"),
		body: layoutHead + `<h2 style="color: #C62828;">Request update</h2>
<p>Hi {{.Name}},</p>
<p>{{.CounterpartName}} cancelled your acceptance of request #{{.RequestID}}. No further action is needed.</p>
` + layoutFoot,
	},
	queue.MailDonationRecorded: {
		subject: fixed("Thank you for donating blood"),
		body: layoutHead + `<h2 style="color: #2E7D32;">Thank you, {{.Name}}!</h2>
<p>{{.CounterpartName}} confirmed your donation for request #{{.RequestID}}.</p>
<p>You will be eligible to donate again in three months.</p>
` + layoutFoot,
	},
}
