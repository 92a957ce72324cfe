package senders

import (
	"context"
	"fmt"
	"net/url"

	"github.com/carlmjohnson/requests"
)

type discordSender struct {
	base
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Author      *discordAuthor `json:"author,omitempty"`
	Image       *discordImage  `json:"image,omitempty"`
}

type discordAuthor struct {
	Name string `json:"name"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordWebhookBody struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordWebhookResponse struct {
	ID string `json:"id"`
}

func (d *discordSender) Validate(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return err
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("discord webhook must be an http(s) URL, got %q", address)
	}
	return nil
}

func (d *discordSender) Send(ctx context.Context, address string, msg Message) (string, error) {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		Color:       msg.Color,
	}
	if msg.ChannelName != "" {
		embed.Author = &discordAuthor{Name: msg.ChannelName}
	}
	if msg.ImageURL != "" {
		embed.Image = &discordImage{URL: msg.ImageURL}
	}

	var resp discordWebhookResponse
	err := requests.URL(address).
		Param("wait", "true").
		Transport(d.transport).
		BodyJSON(discordWebhookBody{Embeds: []discordEmbed{embed}}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("discord webhook: %w", err)
	}
	return resp.ID, nil
}
