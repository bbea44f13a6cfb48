package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	maxBarsPage = 10000
)

// GetCalendar fetches trading days in the optional range.
func (c *Client) GetCalendar(ctx context.Context, params model.CalendarParams) ([]Calendar, error) {
	if err := params.Validate(c.now()); err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}

	query := url.Values{}
	if params.Start != nil {
		query.Set("start", params.Start.Format(dateLayout))
	}
	if params.End != nil {
		query.Set("end", params.End.Format(dateLayout))
	}

	var days []Calendar
	if err := c.get(ctx, c.tradingURL, "/v2/calendar", query, &days); err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	return days, nil
}

// GetAssets fetches active US equities.
func (c *Client) GetAssets(ctx context.Context) ([]Asset, error) {
	query := url.Values{}
	query.Set("status", "active")
	query.Set("asset_class", "us_equity")

	var assets []Asset
	if err := c.get(ctx, c.tradingURL, "/v2/assets", query, &assets); err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}
	return assets, nil
}

// GetBars fetches bars by paginating through results.
func (c *Client) GetBars(ctx context.Context, params model.BarsParams) ([]Bar, error) {
	if err := params.Validate(c.now()); err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	query := url.Values{}
	query.Set("timeframe", params.Timeframe.String())
	query.Set("start", params.Start.UTC().Format(time.RFC3339))
	if params.End != nil {
		query.Set("end", params.End.UTC().Format(time.RFC3339))
	}
	if c.feed != "" {
		query.Set("feed", c.feed)
	}
	pageSize := maxBarsPage
	if params.Limit > 0 && params.Limit < pageSize {
		pageSize = params.Limit
	}
	query.Set("limit", strconv.Itoa(pageSize))

	path := "/v2/stocks/" + url.PathEscape(params.Symbol) + "/bars"
	var all []Bar
	for {
		var resp BarsResponse
		if err := c.get(ctx, c.dataURL, path, query, &resp); err != nil {
			return nil, fmt.Errorf("get bars %s: %w", params.Symbol, err)
		}
		all = append(all, resp.Bars...)

		if params.Limit > 0 && len(all) >= params.Limit {
			return all[:params.Limit], nil
		}
		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		query.Set("page_token", *resp.NextPageToken)
	}

	c.logger.Debug("fetched bars", "symbol", params.Symbol, "timeframe", params.Timeframe.Name(), "count", len(all))
	return all, nil
}

// FetchCalendar fetches trading days as a calendar frame.
func (c *Client) FetchCalendar(ctx context.Context, params model.CalendarParams) (*frame.Frame, error) {
	days, err := c.GetCalendar(ctx, params)
	if err != nil {
		return nil, err
	}
	return CalendarFrame(days), nil
}

// FetchAssets fetches assets as an asset frame.
func (c *Client) FetchAssets(ctx context.Context) (*frame.Frame, error) {
	assets, err := c.GetAssets(ctx)
	if err != nil {
		return nil, err
	}
	return AssetFrame(assets), nil
}

// FetchBars fetches bars as a bar frame.
func (c *Client) FetchBars(ctx context.Context, params model.BarsParams) (*frame.Frame, error) {
	bars, err := c.GetBars(ctx, params)
	if err != nil {
		return nil, err
	}
	return BarFrame(params.Symbol, params.Timeframe, bars), nil
}
