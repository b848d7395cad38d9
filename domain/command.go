package domain

// Upload is an attachment as received from a client, before storage.
type Upload struct {
	Name string
	Data []byte
}

type CreateGroupCommand struct {
	Actor        string
	Name         string   `validate:"required,max=100"`
	Participants []string `validate:"required,dive,required"`
}

type SendMessageCommand struct {
	Actor       string
	ChatID      string
	Content     string
	Attachments []Upload
}

type RegisterCommand struct {
	Username string
	Email    string
	FullName string
	Password string
}
