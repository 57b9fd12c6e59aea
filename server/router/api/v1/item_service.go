package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refound-dev/refound/server/service/item"
	"github.com/refound-dev/refound/store"
)

// itemResponse is the public view of an item. Embeddings and claim tokens
// never leave the server; match entries are exposed as candidate references.
type itemResponse struct {
	UID              string          `json:"uid"`
	CreatedTs        int64           `json:"createdTs"`
	Kind             string          `json:"kind"`
	Status           string          `json:"status"`
	Category         string          `json:"category,omitempty"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Location         string          `json:"location"`
	OrganizationType string          `json:"organizationType"`
	PostedBy         string          `json:"postedBy"`
	ClaimedBy        string          `json:"claimedBy,omitempty"`
	FounderContact   string          `json:"founderContact,omitempty"`
	ImagePath        string          `json:"imagePath,omitempty"`
	ThumbnailPath    string          `json:"thumbnailPath,omitempty"`
	Matches          []matchResponse `json:"matches"`
}

type matchResponse struct {
	CandidateItemID string  `json:"candidateItemId"`
	Score           float64 `json:"score"`
}

func convertItem(i *store.Item) *itemResponse {
	resp := &itemResponse{
		UID:              i.UID,
		CreatedTs:        i.CreatedTs,
		Kind:             string(i.Kind),
		Status:           string(i.Status),
		Category:         i.Category,
		Title:            i.Title,
		Description:      i.Description,
		Location:         i.Location,
		OrganizationType: string(i.OrganizationType),
		PostedBy:         i.PostedBy,
		FounderContact:   i.FounderContact,
		Matches:          make([]matchResponse, 0, len(i.MatchCandidates)),
	}
	if i.ClaimedBy != nil {
		resp.ClaimedBy = *i.ClaimedBy
	}
	if i.ImagePath != nil {
		resp.ImagePath = *i.ImagePath
	}
	if i.ThumbnailPath != nil {
		resp.ThumbnailPath = *i.ThumbnailPath
	}
	for _, m := range i.MatchCandidates {
		resp.Matches = append(resp.Matches, matchResponse{
			CandidateItemID: m.CandidateUID,
			Score:           m.Score,
		})
	}
	return resp
}

func convertItems(items []*store.Item) []*itemResponse {
	list := make([]*itemResponse, 0, len(items))
	for _, i := range items {
		list = append(list, convertItem(i))
	}
	return list
}

// createItem accepts a multipart form so the photo rides along with the
// fields. The photo is optional; items without one are never matched.
func (s *APIV1Service) createItem(c echo.Context) error {
	req := &item.CreateItemRequest{
		Kind:           store.ItemKind(c.FormValue("kind")),
		Category:       c.FormValue("category"),
		Title:          c.FormValue("title"),
		Description:    c.FormValue("description"),
		Location:       c.FormValue("location"),
		FounderContact: c.FormValue("founderContact"),
	}

	if file, err := c.FormFile("photo"); err == nil && s.PhotoService != nil {
		src, err := file.Open()
		if err != nil {
			return respondError(c, err)
		}
		defer src.Close()

		imagePath, thumbPath, err := s.PhotoService.Save(c.Request().Context(), file.Filename, src)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.ImagePath = &imagePath
		if thumbPath != "" {
			req.ThumbnailPath = &thumbPath
		}
	}

	created, err := s.ItemService.Create(c.Request().Context(), callerIdentity(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, convertItem(created))
}

func (s *APIV1Service) listItems(c echo.Context) error {
	filter := &item.ListFilter{}
	if v := c.QueryParam("kind"); v != "" {
		kind := store.ItemKind(v)
		filter.Kind = &kind
	}
	if v := c.QueryParam("status"); v != "" {
		status := store.ItemStatus(v)
		filter.Status = &status
	}

	items, err := s.ItemService.List(c.Request().Context(), callerIdentity(c), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItems(items))
}

func (s *APIV1Service) listPostedItems(c echo.Context) error {
	items, err := s.ItemService.ListPosted(c.Request().Context(), callerIdentity(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItems(items))
}

func (s *APIV1Service) listClaimedItems(c echo.Context) error {
	items, err := s.ItemService.ListClaimed(c.Request().Context(), callerIdentity(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItems(items))
}

func (s *APIV1Service) getItem(c echo.Context) error {
	found, err := s.ItemService.Get(c.Request().Context(), callerIdentity(c), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(found))
}

func (s *APIV1Service) deleteItem(c echo.Context) error {
	if err := s.ItemService.Delete(c.Request().Context(), callerIdentity(c), c.Param("uid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type qrResponse struct {
	Token     string `json:"token"`
	ExpiresTs int64  `json:"expiresTs"`
}

func (s *APIV1Service) generateQR(c echo.Context) error {
	grant, err := s.ItemService.GenerateQR(c.Request().Context(), callerIdentity(c), c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, qrResponse{Token: grant.Token, ExpiresTs: grant.ExpiresTs})
}

func (s *APIV1Service) verifyQR(c echo.Context) error {
	preview, err := s.ItemService.VerifyQR(c.Request().Context(), callerIdentity(c), c.Param("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(preview))
}

func (s *APIV1Service) claimItem(c echo.Context) error {
	claimed, err := s.ItemService.Claim(c.Request().Context(), callerIdentity(c), c.Param("token"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, convertItem(claimed))
}
